package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Module is an application area an access grant can enable.
type Module string

const (
	ModuleFundraising Module = "fundraising"
	ModuleGrants      Module = "grants"
	ModuleDocuments   Module = "documents"
	ModuleHR          Module = "hr"
	ModuleProcurement Module = "procurement"
	ModuleLearning    Module = "learning"
	ModuleUsers       Module = "users"
)

// Permission is an operation allowed inside a module.
type Permission string

const (
	PermissionCreate Permission = "create"
	PermissionRead   Permission = "read"
	PermissionUpdate Permission = "update"
	PermissionDelete Permission = "delete"
)

var (
	knownModules = map[Module]struct{}{
		ModuleFundraising: {}, ModuleGrants: {}, ModuleDocuments: {}, ModuleHR: {},
		ModuleProcurement: {}, ModuleLearning: {}, ModuleUsers: {},
	}
	knownPermissions = map[Permission]struct{}{
		PermissionCreate: {}, PermissionRead: {}, PermissionUpdate: {}, PermissionDelete: {},
	}
)

var (
	ErrUnknownModule     = errors.New("unknown access grant module")
	ErrUnknownPermission = errors.New("unknown access grant permission")
)

// ModuleAccess is the grant for a single module. Permissions behave as a set.
type ModuleAccess struct {
	Enabled     bool         `json:"enabled"`
	Permissions []Permission `json:"permissions"`
}

// AccessGrant maps modules to the access a profile has in them. A nil grant grants nothing.
type AccessGrant map[Module]ModuleAccess

// Validate rejects unknown modules and permissions. The error names the offending key.
func (g AccessGrant) Validate() error {
	for module, access := range g {
		if _, ok := knownModules[module]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownModule, module)
		}
		for _, p := range access.Permissions {
			if _, ok := knownPermissions[p]; !ok {
				return fmt.Errorf("%w: %q in module %q", ErrUnknownPermission, p, module)
			}
		}
	}
	return nil
}

// Normalized returns a copy with sorted, de-duplicated permissions and never returns nil.
func (g AccessGrant) Normalized() AccessGrant {
	out := make(AccessGrant, len(g))
	for module, access := range g {
		out[module] = ModuleAccess{Enabled: access.Enabled, Permissions: normalizePermissions(access.Permissions)}
	}
	return out
}

// Allows reports whether the module is enabled and grants the permission.
func (g AccessGrant) Allows(module Module, perm Permission) bool {
	access, ok := g[module]
	return ok && access.Enabled && slices.Contains(access.Permissions, perm)
}

// MarshalJSON writes permissions sorted and de-duplicated, with an empty set as [].
func (a ModuleAccess) MarshalJSON() ([]byte, error) {
	type plain ModuleAccess
	return json.Marshal(plain{Enabled: a.Enabled, Permissions: normalizePermissions(a.Permissions)})
}

// Value implements driver.Valuer so a grant can be stored in a JSONB column.
func (g AccessGrant) Value() (driver.Value, error) {
	if g == nil {
		g = AccessGrant{}
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB columns. NULL scans to an empty grant.
func (g *AccessGrant) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*g = AccessGrant{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("access grant: unsupported scan type %T", src)
	}
	var out AccessGrant
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("access grant: %w", err)
	}
	if out == nil {
		out = AccessGrant{}
	}
	*g = out.Normalized()
	return nil
}

func normalizePermissions(perms []Permission) []Permission {
	out := append(make([]Permission, 0, len(perms)), perms...)
	slices.Sort(out)
	return slices.Compact(out)
}
