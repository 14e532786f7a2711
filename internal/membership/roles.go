package membership

import "github.com/hugh/tenantgate/internal/errs"

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

type Permission string

const (
	ProjectCreate Permission = "project:create"
	ProjectShare  Permission = "project:share"
	ProjectUpdate Permission = "project:update"
	ProjectDelete Permission = "project:delete"

	OrganizationUpdate Permission = "organization:update"
	OrganizationDelete Permission = "organization:delete"
	InvitationCreate   Permission = "invitation:create"
	InvitationCancel   Permission = "invitation:cancel"
	MemberRemove       Permission = "member:remove"
	MemberUpdate       Permission = "member:update"
)

var permissions = map[Role]map[Permission]bool{
	RoleMember: {
		ProjectCreate: true,
	},
	RoleAdmin: {
		ProjectCreate:    true,
		ProjectShare:     true,
		ProjectUpdate:    true,
		ProjectDelete:    true,
		InvitationCreate: true,
		InvitationCancel: true,
		MemberRemove:     true,
	},
	RoleOwner: {
		ProjectCreate:      true,
		ProjectShare:       true,
		ProjectUpdate:      true,
		ProjectDelete:      true,
		OrganizationUpdate: true,
		OrganizationDelete: true,
		InvitationCreate:   true,
		InvitationCancel:   true,
		MemberRemove:       true,
		MemberUpdate:       true,
	},
}

// Can reports whether role grants p. Unknown roles grant nothing.
func Can(role Role, p Permission) bool {
	return permissions[role][p]
}

func (r Role) Valid() bool {
	_, ok := permissions[r]
	return ok
}

// ParseRole validates a role name. Empty means member.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleMember, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", errs.Validation("role", "Role must be one of member, admin, owner")
	}
	return r, nil
}
