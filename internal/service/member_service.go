package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// MemberService manages memberships and invitations
type MemberService struct {
	Common
	members     domain.MembershipRepository
	invitations domain.InvitationRepository
	users       domain.UserRepository
	plans       map[string]domain.Plan
	ttl         time.Duration
	cache       MembershipCache
	bcryptCost  int
}

// NewMemberService creates the member service; cache may be nil
func NewMemberService(
	c Common,
	members domain.MembershipRepository,
	invitations domain.InvitationRepository,
	users domain.UserRepository,
	plans map[string]domain.Plan,
	invitationTTL time.Duration,
	cache MembershipCache,
) *MemberService {
	if invitationTTL <= 0 {
		invitationTTL = 7 * 24 * time.Hour
	}
	return &MemberService{
		Common:      c.withDefaults(),
		members:     members,
		invitations: invitations,
		users:       users,
		plans:       plans,
		ttl:         invitationTTL,
		cache:       cache,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

// InvitationResult carries the bearer token, which is only ever shown once
type InvitationResult struct {
	Invitation *domain.Invitation `json:"invitation"`
	Token      string             `json:"token"`
}

// ListMembers returns the organization's members with profiles
func (s *MemberService) ListMembers(ctx context.Context, m *domain.Membership) ([]*domain.MemberView, error) {
	if err := s.Authz.Require(m, security.PermReadOrganization); err != nil {
		return nil, err
	}
	return s.members.ListByOrganization(ctx, m.OrganizationID)
}

// ChangeRole moves a member to a new role within the rank rules
func (s *MemberService) ChangeRole(ctx context.Context, m *domain.Membership, userID string, role domain.Role) (*domain.Membership, error) {
	if err := s.Authz.Require(m, security.PermManageMembers); err != nil {
		return nil, err
	}
	if role.Rank() == 0 {
		return nil, domain.Invalid("role", "must be one of OWNER, ADMIN, MANAGER, MEMBER")
	}
	target, err := s.members.Get(ctx, m.OrganizationID, userID)
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}
	if !m.Role.CanManage(target.Role, role) {
		return nil, fmt.Errorf("%s cannot change %s to %s: %w", m.Role, target.Role, role, domain.ErrForbidden)
	}

	if err := s.members.UpdateRole(ctx, m.OrganizationID, userID, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.forget(m.OrganizationID, userID)

	from := target.Role
	target.Role = role
	target.UpdatedAt = s.Now().UTC()
	s.emit(ctx, m.OrganizationID, m.UserID, events.MemberRoleChanged, "membership", userID,
		map[string]domain.Role{"from": from, "to": role})
	return target, nil
}

// Remove takes a member out of the organization
func (s *MemberService) Remove(ctx context.Context, m *domain.Membership, userID string) error {
	if userID == m.UserID {
		return s.Leave(ctx, m)
	}
	if err := s.Authz.Require(m, security.PermManageMembers); err != nil {
		return err
	}
	target, err := s.members.Get(ctx, m.OrganizationID, userID)
	if err != nil {
		return err
	}
	if !m.Role.CanManage(target.Role, target.Role) {
		return fmt.Errorf("%s cannot remove %s: %w", m.Role, target.Role, domain.ErrForbidden)
	}
	if err := s.members.Delete(ctx, m.OrganizationID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.forget(m.OrganizationID, userID)
	s.emit(ctx, m.OrganizationID, m.UserID, events.MemberRemoved, "membership", userID,
		map[string]domain.Role{"role": target.Role})
	return nil
}

// Leave removes the caller's own membership
func (s *MemberService) Leave(ctx context.Context, m *domain.Membership) error {
	if m == nil {
		return domain.ErrForbidden
	}
	if err := s.members.Delete(ctx, m.OrganizationID, m.UserID); err != nil {
		return fmt.Errorf("leave organization: %w", err)
	}
	s.forget(m.OrganizationID, m.UserID)
	s.emit(ctx, m.OrganizationID, m.UserID, events.MemberRemoved, "membership", m.UserID,
		map[string]any{"role": m.Role, "left": true})
	return nil
}

func (s *MemberService) forget(orgID, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(orgID, userID)
	}
}

// Invite creates an invitation and returns its one-time token
func (s *MemberService) Invite(ctx context.Context, m *domain.Membership, email string, role domain.Role) (*InvitationResult, error) {
	org, err := s.requireWrite(ctx, m, security.PermManageInvitations)
	if err != nil {
		return nil, err
	}
	email = domain.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.Invalid("email", "is not a valid address")
	}
	if role.Rank() == 0 {
		return nil, domain.Invalid("role", "must be one of ADMIN, MANAGER, MEMBER")
	}
	if !m.Role.CanInvite(role) {
		return nil, fmt.Errorf("%s cannot invite %s: %w", m.Role, role, domain.ErrForbidden)
	}

	if u, err := s.users.GetByEmail(ctx, email); err == nil {
		if _, err := s.members.Get(ctx, org.ID, u.ID); err == nil {
			return nil, fmt.Errorf("%s is already a member: %w", email, domain.ErrConflict)
		}
	}
	now := s.Now().UTC()
	if existing, err := s.invitations.FindPendingByEmail(ctx, org.ID, email); err == nil && existing.Usable(now) {
		return nil, fmt.Errorf("an invitation for %s is already pending: %w", email, domain.ErrConflict)
	}
	if err := s.checkSeats(ctx, org, now); err != nil {
		return nil, err
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		s.Logger.Error("failed to hash invitation secret", slog.String("error", err.Error()))
		return nil, errors.New("failed to create invitation")
	}

	inv := &domain.Invitation{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		Email:          email,
		Role:           role,
		SecretHash:     string(hash),
		Status:         domain.InvitationPending,
		InvitedBy:      m.UserID,
		ExpiresAt:      now.Add(s.ttl),
		CreatedAt:      now,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.emit(ctx, org.ID, m.UserID, events.MemberInvited, "invitation", inv.ID,
		map[string]any{"email": email, "role": role})
	return &InvitationResult{Invitation: inv, Token: inv.ID + "." + secret}, nil
}

// checkSeats counts members plus live invitations against the plan's limit
func (s *MemberService) checkSeats(ctx context.Context, org *domain.Organization, now time.Time) error {
	limit := org.SeatLimit(s.plans)
	if limit <= 0 {
		return nil
	}
	used, err := s.members.Count(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	pending, err := s.invitations.CountPending(ctx, org.ID, now)
	if err != nil {
		return fmt.Errorf("count invitations: %w", err)
	}
	if used+pending >= limit {
		return fmt.Errorf("%d of %d seats in use: %w", used+pending, limit, domain.ErrSeatLimitReached)
	}
	return nil
}

// ListInvitations returns the pending invitations
func (s *MemberService) ListInvitations(ctx context.Context, m *domain.Membership) ([]*domain.Invitation, error) {
	if err := s.Authz.Require(m, security.PermManageInvitations); err != nil {
		return nil, err
	}
	return s.invitations.ListPending(ctx, m.OrganizationID)
}

// RevokeInvitation withdraws a pending invitation
func (s *MemberService) RevokeInvitation(ctx context.Context, m *domain.Membership, id string) error {
	if err := s.Authz.Require(m, security.PermManageInvitations); err != nil {
		return err
	}
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.OrganizationID != m.OrganizationID {
		return domain.ErrNotFound
	}
	if err := s.invitations.UpdateStatus(ctx, id, domain.InvitationRevoked, s.Now().UTC()); err != nil {
		return err
	}
	s.Audit.LogAction(ctx, m.OrganizationID, m.UserID, "invitation.revoked", "invitation", id,
		map[string]string{"email": inv.Email})
	return nil
}

// AcceptInvitation joins the signed-in user to the inviting organization
func (s *MemberService) AcceptInvitation(ctx context.Context, userID, email, token string) (*domain.Membership, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || id == "" || secret == "" {
		return nil, domain.Invalid("token", "is malformed")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.Invalid("token", "is malformed")
	}

	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(inv.SecretHash), []byte(secret)); err != nil {
		return nil, domain.ErrNotFound
	}
	now := s.Now().UTC()
	if !inv.Usable(now) {
		return nil, fmt.Errorf("invitation is no longer valid: %w", domain.ErrConflict)
	}
	if domain.NormalizeEmail(email) != inv.Email {
		return nil, fmt.Errorf("invitation was sent to a different address: %w", domain.ErrForbidden)
	}
	if _, err := s.Orgs.GetByID(ctx, inv.OrganizationID); err != nil {
		return nil, err
	}
	if _, err := s.members.Get(ctx, inv.OrganizationID, userID); err == nil {
		return nil, fmt.Errorf("already a member: %w", domain.ErrConflict)
	}

	membership := &domain.Membership{
		OrganizationID: inv.OrganizationID,
		UserID:         userID,
		Role:           inv.Role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.invitations.Accept(ctx, inv.ID, now, membership); err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	s.forget(inv.OrganizationID, userID)

	s.emit(ctx, inv.OrganizationID, userID, events.MemberJoined, "membership", userID,
		map[string]any{"role": inv.Role, "invitationId": inv.ID})
	return membership, nil
}

// ExpireInvitations marks overdue invitations expired
func (s *MemberService) ExpireInvitations(ctx context.Context) (int, error) {
	expired, err := s.invitations.ExpireStale(ctx, s.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, inv := range expired {
		s.emit(ctx, inv.OrganizationID, SystemActor, events.InvitationExpired, "invitation", inv.ID,
			map[string]string{"email": inv.Email})
	}
	return len(expired), nil
}

func newSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
