package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// MemberHandler serves memberships and invitations
type MemberHandler struct {
	members *service.MemberService
	logger  *slog.Logger
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(members *service.MemberService, logger *slog.Logger) *MemberHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberHandler{members: members, logger: logger}
}

// RoleRequest changes a member's role
type RoleRequest struct {
	Role string `json:"role"`
}

// InviteRequest invites an email address with a role
type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AcceptRequest carries the invitation token
type AcceptRequest struct {
	Token string `json:"token"`
}

// List handles GET /api/organizations/{orgId}/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	members, err := h.members.ListMembers(r.Context(), m)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(members, len(members), pageAll(len(members))))
}

// ChangeRole handles PATCH /api/organizations/{orgId}/members/{userId}
func (h *MemberHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updated, err := h.members.ChangeRole(r.Context(), m, r.PathValue("userId"), role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Remove handles DELETE /api/organizations/{orgId}/members/{userId}
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.members.Remove(r.Context(), m, r.PathValue("userId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave handles POST /api/organizations/{orgId}/leave
func (h *MemberHandler) Leave(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.members.Leave(r.Context(), m); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Invite handles POST /api/organizations/{orgId}/invitations. The token is
// only ever returned here.
func (h *MemberHandler) Invite(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req InviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.members.Invite(r.Context(), m, req.Email, role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListInvitations handles GET /api/organizations/{orgId}/invitations
func (h *MemberHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	invitations, err := h.members.ListInvitations(r.Context(), m)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(invitations, len(invitations), pageAll(len(invitations))))
}

// RevokeInvitation handles DELETE /api/organizations/{orgId}/invitations/{id}
func (h *MemberHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.members.RevokeInvitation(r.Context(), m, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept handles POST /api/invitations/accept
func (h *MemberHandler) Accept(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}
	var req AcceptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	m, err := h.members.AcceptInvitation(r.Context(), claims.UserID(), claims.Email, req.Token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
