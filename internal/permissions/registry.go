package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Permission describes a permission definition registered by modules.
type Permission struct {
	ID          string
	Module      string
	DependsOn   []string
	Implies     []string
	Description string
}

type permissionRegistry struct {
	mu          sync.RWMutex
	permissions map[string]*Permission
}

var globalRegistry = &permissionRegistry{
	permissions: make(map[string]*Permission),
}

var (
	// ErrUnknownPermission indicates a permission ID absent from the registry.
	ErrUnknownPermission = errors.New("permission: unknown id")

	errNilPermission   = errors.New("permission: nil definition")
	errEmptyID         = errors.New("permission: id is required")
	errDuplicateID     = errors.New("permission: already registered")
	errSelfDependency  = errors.New("permission: cannot depend on itself")
	errSelfImplication = errors.New("permission: cannot imply itself")
)

// Register adds a permission definition to the global registry.
func Register(perm *Permission) error {
	if perm == nil {
		return errNilPermission
	}

	id := strings.TrimSpace(perm.ID)
	if id == "" {
		return errEmptyID
	}

	def := clonePermission(perm)
	def.ID = id
	def.Module = strings.TrimSpace(def.Module)

	depends, err := normaliseIDs(def.DependsOn, id, errSelfDependency)
	if err != nil {
		return err
	}
	implies, err := normaliseIDs(def.Implies, id, errSelfImplication)
	if err != nil {
		return err
	}
	def.DependsOn = depends
	def.Implies = implies

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.permissions[id]; exists {
		return fmt.Errorf("%w: %s", errDuplicateID, id)
	}

	globalRegistry.permissions[id] = def
	return nil
}

// Get returns a copy of the permission definition when registered.
func Get(id string) (*Permission, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	perm, ok := globalRegistry.permissions[id]
	if !ok {
		return nil, false
	}
	return clonePermission(perm), true
}

// GetAll returns a copy of all registered permissions keyed by ID.
func GetAll() map[string]*Permission {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	out := make(map[string]*Permission, len(globalRegistry.permissions))
	for id, perm := range globalRegistry.permissions {
		out[id] = clonePermission(perm)
	}
	return out
}

// AllIDs returns every registered permission ID, sorted.
func AllIDs() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	ids := make([]string, 0, len(globalRegistry.permissions))
	for id := range globalRegistry.permissions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveDependencies returns the transitive DependsOn closure for a permission.
func ResolveDependencies(id string) ([]string, error) {
	resolved := make(map[string]struct{})

	var visit func(string) error
	visit = func(current string) error {
		def, ok := Get(current)
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownPermission, current)
		}
		for _, dep := range def.DependsOn {
			if _, seen := resolved[dep]; seen {
				continue
			}
			resolved[dep] = struct{}{}
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(id); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(resolved))
	for dep := range resolved {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out, nil
}

func clonePermission(perm *Permission) *Permission {
	cpy := *perm
	cpy.DependsOn = append([]string(nil), perm.DependsOn...)
	cpy.Implies = append([]string(nil), perm.Implies...)
	return &cpy
}

func normaliseIDs(ids []string, self string, selfErr error) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if id == self {
			return nil, fmt.Errorf("%w: %s", selfErr, self)
		}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
