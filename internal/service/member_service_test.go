package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

func newTestMemberService(f *fixture) *MemberService {
	s := NewMemberService(f.common, f.members, f.invitations, f.users, testPlans, 48*time.Hour, f.cache)
	s.bcryptCost = bcrypt.MinCost
	return s
}

func TestInviteAndAccept(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionTrialing)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	res, err := s.Invite(ctx, owner, " Hana@Example.com", domain.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, "hana@example.com", res.Invitation.Email)
	assert.Equal(t, testNow.Add(48*time.Hour), res.Invitation.ExpiresAt)
	assert.True(t, strings.HasPrefix(res.Token, res.Invitation.ID+"."))
	assert.NotContains(t, res.Invitation.SecretHash, strings.SplitN(res.Token, ".", 2)[1])

	_, err = s.Invite(ctx, owner, "hana@example.com", domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrConflict, "pending invitation must block a duplicate")

	_, err = s.AcceptInvitation(ctx, "user-h", "someone@else.com", res.Token)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	m, err := s.AcceptInvitation(ctx, "user-h", "hana@example.com", res.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, m.Role)
	assert.Contains(t, f.cache.invalidated, memberKey(org.ID, "user-h"))
	assert.Contains(t, f.events.types(), "member.joined")

	_, err = s.AcceptInvitation(ctx, "user-h", "hana@example.com", res.Token)
	assert.ErrorIs(t, err, domain.ErrConflict, "an accepted invitation cannot be reused")
}

func TestAcceptInvitationRetriesAfterFailedInsert(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionTrialing)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	res, err := s.Invite(ctx, owner, "jo@example.com", domain.RoleMember)
	require.NoError(t, err)

	f.members.failCreate = errors.New("connection reset")
	_, err = s.AcceptInvitation(ctx, "user-j", "jo@example.com", res.Token)
	require.Error(t, err)

	inv, err := f.invitations.GetByID(ctx, res.Invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, inv.Status)
	_, err = f.members.Get(ctx, org.ID, "user-j")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	m, err := s.AcceptInvitation(ctx, "user-j", "jo@example.com", res.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, m.Role)
}

func TestAcceptInvitationRejectsBadTokens(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionTrialing)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	res, err := s.Invite(ctx, owner, "ivan@example.com", domain.RoleMember)
	require.NoError(t, err)

	_, err = s.AcceptInvitation(ctx, "user-i", "ivan@example.com", "no-dot")
	assert.True(t, domain.IsValidation(err))

	_, err = s.AcceptInvitation(ctx, "user-i", "ivan@example.com", res.Invitation.ID+".wrong-secret")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInviteRoleRules(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionActive)
	admin := f.member(org, "admin-1", domain.RoleAdmin)
	manager := f.member(org, "manager-1", domain.RoleManager)

	_, err := s.Invite(ctx, admin, "x@example.com", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = s.Invite(ctx, admin, "x@example.com", domain.RoleOwner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = s.Invite(ctx, manager, "x@example.com", domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = s.Invite(ctx, admin, "x@example.com", domain.RoleMember)
	assert.NoError(t, err)
}

func TestInviteEnforcesSeatLimit(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionTrialing)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	// trial allows three seats; the owner holds one
	_, err := s.Invite(ctx, owner, "a@example.com", domain.RoleMember)
	require.NoError(t, err)
	_, err = s.Invite(ctx, owner, "b@example.com", domain.RoleMember)
	require.NoError(t, err)
	_, err = s.Invite(ctx, owner, "c@example.com", domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrSeatLimitReached)
}

func TestInviteBlockedWhenSubscriptionInactive(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	org := f.seedOrg(domain.SubscriptionExpired)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	_, err := s.Invite(context.Background(), owner, "a@example.com", domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrSubscriptionInactive)
}

func TestChangeRoleAndLastOwner(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionActive)
	owner := f.member(org, "owner-1", domain.RoleOwner)
	admin := f.member(org, "admin-1", domain.RoleAdmin)
	f.member(org, "member-1", domain.RoleMember)

	_, err := s.ChangeRole(ctx, admin, "member-1", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	m, err := s.ChangeRole(ctx, admin, "member-1", domain.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, m.Role)

	_, err = s.ChangeRole(ctx, owner, "owner-1", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = s.ChangeRole(ctx, owner, "admin-1", domain.RoleOwner)
	require.NoError(t, err)
	_, err = s.ChangeRole(ctx, owner, "owner-1", domain.RoleAdmin)
	require.NoError(t, err, "a second owner allows demotion")
}

func TestOwnersDemotingEachOtherKeepOneOwner(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionActive)
	first := f.member(org, "owner-1", domain.RoleOwner)
	second := f.member(org, "owner-2", domain.RoleOwner)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	demote := func(m *domain.Membership, target string) {
		defer wg.Done()
		_, err := s.ChangeRole(ctx, m, target, domain.RoleAdmin)
		errs <- err
	}
	wg.Add(2)
	go demote(first, "owner-2")
	go demote(second, "owner-1")
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrLastOwner)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	owners := 0
	for _, id := range []string{"owner-1", "owner-2"} {
		m, err := f.members.Get(ctx, org.ID, id)
		require.NoError(t, err)
		if m.Role == domain.RoleOwner {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}

func TestRemoveAndLeave(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionActive)
	owner := f.member(org, "owner-1", domain.RoleOwner)
	admin := f.member(org, "admin-1", domain.RoleAdmin)
	member := f.member(org, "member-1", domain.RoleMember)

	assert.ErrorIs(t, s.Remove(ctx, admin, "owner-1"), domain.ErrForbidden)
	assert.ErrorIs(t, s.Leave(ctx, owner), domain.ErrLastOwner)

	require.NoError(t, s.Leave(ctx, member))
	_, err := f.members.Get(ctx, org.ID, "member-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Remove(ctx, owner, "admin-1"))
	assert.Contains(t, f.cache.invalidated, memberKey(org.ID, "admin-1"))
}

func TestRevokeAndExpireInvitations(t *testing.T) {
	f := newFixture()
	s := newTestMemberService(f)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionActive)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	first, err := s.Invite(ctx, owner, "a@example.com", domain.RoleMember)
	require.NoError(t, err)
	_, err = s.Invite(ctx, owner, "b@example.com", domain.RoleMember)
	require.NoError(t, err)

	other := f.seedOrg(domain.SubscriptionActive)
	otherOwner := f.member(other, "owner-2", domain.RoleOwner)
	assert.ErrorIs(t, s.RevokeInvitation(ctx, otherOwner, first.Invitation.ID), domain.ErrNotFound)

	require.NoError(t, s.RevokeInvitation(ctx, owner, first.Invitation.ID))
	pending, err := s.ListInvitations(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	s.Now = func() time.Time { return testNow.Add(72 * time.Hour) }
	n, err := s.ExpireInvitations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, f.events.types(), "invitation.expired")
}
