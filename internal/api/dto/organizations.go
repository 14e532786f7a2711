package dto

type CreateOrganizationRequest struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug,omitempty"`
	Logo     *string `json:"logo,omitempty"`
	Metadata *string `json:"metadata,omitempty"`
}

func (r CreateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	return errors
}

type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

func (r SwitchOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.OrganizationID == "" {
		errors["organization_id"] = "Organization ID is required"
	}
	return errors
}

type InviteMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (r InviteMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	return errors
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

func (r UpdateMemberRoleRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Role == "" {
		errors["role"] = "Role is required"
	}
	return errors
}
