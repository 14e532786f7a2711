package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/tenantgate/internal/accounts"
	"github.com/hugh/tenantgate/internal/api/dto"
	"github.com/hugh/tenantgate/internal/storage"
)

type OrganizationHandler struct {
	accounts *accounts.Service
}

func NewOrganizationHandler(svc *accounts.Service) *OrganizationHandler {
	return &OrganizationHandler{accounts: svc}
}

func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.ListOrganizations(r.Context(), sessionToken(r)), http.StatusOK)
}

func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrganizationRequest
	if !decode(w, r, &req) {
		return
	}

	res := h.accounts.CreateOrganization(r.Context(), sessionToken(r), accounts.CreateOrganizationInput{
		Name:     req.Name,
		Slug:     req.Slug,
		Logo:     req.Logo,
		Metadata: req.Metadata,
	})
	writeResult(w, res, http.StatusCreated)
}

func (h *OrganizationHandler) SwitchActive(w http.ResponseWriter, r *http.Request) {
	var req dto.SwitchOrganizationRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.accounts.SwitchActiveOrganization(r.Context(), sessionToken(r), req.OrganizationID), http.StatusOK)
}

func (h *OrganizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.DeleteOrganization(r.Context(), sessionToken(r), chi.URLParam(r, "id")), http.StatusOK)
}

// UploadLogo takes the raw image as the request body.
func (h *OrganizationHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, storage.MaxLogoSize+1)
	res := h.accounts.UploadOrganizationLogo(r.Context(), sessionToken(r), chi.URLParam(r, "id"), r.Header.Get("Content-Type"), body)
	writeResult(w, res, http.StatusOK)
}

func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.ListMembers(r.Context(), sessionToken(r), chi.URLParam(r, "id")), http.StatusOK)
}

func (h *OrganizationHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateMemberRoleRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.accounts.UpdateMemberRole(r.Context(), sessionToken(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"), req.Role)
	writeResult(w, res, http.StatusOK)
}

func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	res := h.accounts.RemoveMember(r.Context(), sessionToken(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	writeResult(w, res, http.StatusOK)
}

func (h *OrganizationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req dto.InviteMemberRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.accounts.InviteMember(r.Context(), sessionToken(r), chi.URLParam(r, "id"), req.Email, req.Role)
	writeResult(w, res, http.StatusCreated)
}
