package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/tenantgate/internal/accounts"
)

type InvitationHandler struct {
	accounts *accounts.Service
}

func NewInvitationHandler(svc *accounts.Service) *InvitationHandler {
	return &InvitationHandler{accounts: svc}
}

// List returns the caller's pending invitations.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.ListInvitations(r.Context(), sessionToken(r)), http.StatusOK)
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.AcceptInvitation(r.Context(), sessionToken(r), chi.URLParam(r, "id")), http.StatusOK)
}

func (h *InvitationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.RejectInvitation(r.Context(), sessionToken(r), chi.URLParam(r, "id")), http.StatusOK)
}

func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.CancelInvitation(r.Context(), sessionToken(r), chi.URLParam(r, "id")), http.StatusOK)
}
