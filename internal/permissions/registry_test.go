package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorePermissionsRegistered(t *testing.T) {
	for _, id := range []string{
		"gym.view", "gym.manage",
		"member.view", "member.create", "member.update", "member.delete",
		"staff.view", "staff.create", "staff.update", "staff.delete",
		"attendance.view", "attendance.record", "attendance.edit",
		"billing.view", "billing.manage",
		"audit.view",
	} {
		_, ok := Get(id)
		require.True(t, ok, "expected %s to be registered", id)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	err := Register(&Permission{ID: "gym.view", Module: "core"})
	require.Error(t, err)
}

func TestRegisterRejectsSelfDependency(t *testing.T) {
	err := Register(&Permission{ID: "loop.view", DependsOn: []string{"loop.view"}})
	require.Error(t, err)
}

func TestResolveDependenciesTransitive(t *testing.T) {
	deps, err := ResolveDependencies("staff.delete")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"staff.view", "staff.update"}, deps)
}

func TestResolveDependenciesUnknown(t *testing.T) {
	_, err := ResolveDependencies("nope.view")
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestGetReturnsCopy(t *testing.T) {
	perm, ok := Get("member.delete")
	require.True(t, ok)

	perm.DependsOn[0] = "mutated"

	fresh, ok := Get("member.delete")
	require.True(t, ok)
	require.NotEqual(t, "mutated", fresh.DependsOn[0])
}
