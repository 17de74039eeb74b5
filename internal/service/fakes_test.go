package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/security/audit"
	"github.com/aryan0dhankhar/bizdesk/internal/security/auth"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type memOrgRepo struct {
	mu      sync.Mutex
	orgs    map[string]*domain.Organization
	members *memMembershipRepo
	// failSubscription fails the next subscription write once
	failSubscription error
}

func newMemOrgRepo(members *memMembershipRepo) *memOrgRepo {
	return &memOrgRepo{orgs: map[string]*domain.Organization{}, members: members}
}

func (r *memOrgRepo) Create(_ context.Context, org *domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orgs {
		if o.Slug == org.Slug {
			return domain.ErrConflict
		}
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.CreatedAt = testNow
	cp := *org
	r.orgs[org.ID] = &cp
	if r.members != nil {
		_ = r.members.Create(context.Background(), &domain.Membership{
			OrganizationID: org.ID, UserID: org.CreatedBy, Role: domain.RoleOwner,
		})
	}
	return nil
}

func (r *memOrgRepo) put(org *domain.Organization) *domain.Organization {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *org
	r.orgs[org.ID] = &cp
	return org
}

func (r *memOrgRepo) GetByID(_ context.Context, id string) (*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	if !ok || o.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrgRepo) GetBySubscriptionRef(_ context.Context, ref string) (*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orgs {
		if o.SubscriptionRef == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memOrgRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orgs {
		if o.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *memOrgRepo) Update(_ context.Context, org *domain.Organization) error {
	return r.save(org)
}

func (r *memOrgRepo) UpdateSubscription(_ context.Context, org *domain.Organization) error {
	r.mu.Lock()
	if err := r.failSubscription; err != nil {
		r.failSubscription = nil
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()
	return r.save(org)
}

func (r *memOrgRepo) save(org *domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[org.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *org
	r.orgs[org.ID] = &cp
	return nil
}

func (r *memOrgRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	if !ok {
		return domain.ErrNotFound
	}
	at := testNow
	o.DeletedAt = &at
	return nil
}

func (r *memOrgRepo) ListForUser(ctx context.Context, userID string) ([]*domain.OrganizationWithRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.OrganizationWithRole{}
	for _, o := range r.orgs {
		if o.DeletedAt != nil || r.members == nil {
			continue
		}
		if m, err := r.members.Get(ctx, o.ID, userID); err == nil {
			out = append(out, &domain.OrganizationWithRole{Organization: *o, Role: m.Role})
		}
	}
	return out, nil
}

func (r *memOrgRepo) ListSubscriptionsDue(_ context.Context, now time.Time) ([]*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Organization{}
	for _, o := range r.orgs {
		cp := *o
		if cp.Sweep(now) {
			orig := *o
			out = append(out, &orig)
		}
	}
	return out, nil
}

type memMembershipRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Membership
	// failCreate fails the next insert once
	failCreate error
}

func newMemMembershipRepo() *memMembershipRepo {
	return &memMembershipRepo{rows: map[string]*domain.Membership{}}
}

func memberKey(orgID, userID string) string { return orgID + ":" + userID }

func (r *memMembershipRepo) Create(_ context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failCreate; err != nil {
		r.failCreate = nil
		return err
	}
	k := memberKey(m.OrganizationID, m.UserID)
	if _, ok := r.rows[k]; ok {
		return domain.ErrConflict
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	cp := *m
	r.rows[k] = &cp
	return nil
}

func (r *memMembershipRepo) Get(_ context.Context, orgID, userID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[memberKey(orgID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMembershipRepo) ListByOrganization(_ context.Context, orgID string) ([]*domain.MemberView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.MemberView{}
	for _, m := range r.rows {
		if m.OrganizationID == orgID {
			out = append(out, &domain.MemberView{Membership: *m})
		}
	}
	return out, nil
}

func (r *memMembershipRepo) UpdateRole(_ context.Context, orgID, userID string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[memberKey(orgID, userID)]
	if !ok {
		return domain.ErrNotFound
	}
	if role != domain.RoleOwner && r.lastOwner(orgID, userID) {
		return domain.ErrLastOwner
	}
	m.Role = role
	return nil
}

func (r *memMembershipRepo) Delete(_ context.Context, orgID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memberKey(orgID, userID)
	if _, ok := r.rows[k]; !ok {
		return domain.ErrNotFound
	}
	if r.lastOwner(orgID, userID) {
		return domain.ErrLastOwner
	}
	delete(r.rows, k)
	return nil
}

// lastOwner reports whether userID is the organization's only owner; r.mu is held
func (r *memMembershipRepo) lastOwner(orgID, userID string) bool {
	owners := 0
	for _, m := range r.rows {
		if m.OrganizationID == orgID && m.Role == domain.RoleOwner {
			owners++
		}
	}
	m := r.rows[memberKey(orgID, userID)]
	return owners == 1 && m != nil && m.Role == domain.RoleOwner
}

func (r *memMembershipRepo) Count(_ context.Context, orgID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.rows {
		if m.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	touched map[string]time.Time
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}, touched: map[string]time.Time{}}
}

func (r *memUserRepo) Upsert(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = testNow
	}
	u.UpdatedAt = testNow
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) TouchLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[id] = at
	return nil
}

type memInvitationRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.Invitation
	members *memMembershipRepo
}

func newMemInvitationRepo(members *memMembershipRepo) *memInvitationRepo {
	return &memInvitationRepo{rows: map[string]*domain.Invitation{}, members: members}
}

func (r *memInvitationRepo) Create(_ context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.rows[inv.ID] = &cp
	return nil
}

func (r *memInvitationRepo) GetByID(_ context.Context, id string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memInvitationRepo) ListPending(_ context.Context, orgID string) ([]*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Invitation{}
	for _, inv := range r.rows {
		if inv.OrganizationID == orgID && inv.Status == domain.InvitationPending {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memInvitationRepo) CountPending(_ context.Context, orgID string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.rows {
		if inv.OrganizationID == orgID && inv.Usable(now) {
			n++
		}
	}
	return n, nil
}

func (r *memInvitationRepo) FindPendingByEmail(_ context.Context, orgID, email string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.rows {
		if inv.OrganizationID == orgID && inv.Email == email && inv.Status == domain.InvitationPending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memInvitationRepo) UpdateStatus(_ context.Context, id string, status domain.InvitationStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if inv.Status != domain.InvitationPending {
		return domain.ErrConflict
	}
	inv.Status = status
	if status == domain.InvitationAccepted {
		inv.AcceptedAt = &at
	}
	return nil
}

func (r *memInvitationRepo) Accept(ctx context.Context, id string, at time.Time, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if inv.Status != domain.InvitationPending {
		return domain.ErrConflict
	}
	if err := r.members.Create(ctx, m); err != nil {
		return err
	}
	inv.Status = domain.InvitationAccepted
	inv.AcceptedAt = &at
	return nil
}

func (r *memInvitationRepo) ExpireStale(_ context.Context, now time.Time) ([]*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Invitation{}
	for _, inv := range r.rows {
		if inv.Status == domain.InvitationPending && !now.Before(inv.ExpiresAt) {
			inv.Status = domain.InvitationExpired
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memCheckoutRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.CheckoutSession
	orgs *memOrgRepo
}

func newMemCheckoutRepo(orgs *memOrgRepo) *memCheckoutRepo {
	return &memCheckoutRepo{rows: map[string]*domain.CheckoutSession{}, orgs: orgs}
}

func (r *memCheckoutRepo) Create(_ context.Context, s *domain.CheckoutSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *memCheckoutRepo) GetByID(_ context.Context, id string) (*domain.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memCheckoutRepo) Complete(ctx context.Context, id string, at time.Time, org *domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Status != domain.CheckoutPending {
		return domain.ErrConflict
	}
	// the session only completes when the organization write succeeds
	if err := r.orgs.UpdateSubscription(ctx, org); err != nil {
		return err
	}
	s.Status = domain.CheckoutCompleted
	s.CompletedAt = &at
	return nil
}

func (r *memCheckoutRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.rows {
		if s.Status == domain.CheckoutPending && !now.Before(s.ExpiresAt) {
			s.Status = domain.CheckoutExpired
			n++
		}
	}
	return n, nil
}

type memClientRepo struct {
	mu         sync.Mutex
	rows       map[string]*domain.Client
	dependents map[string]bool
}

func newMemClientRepo() *memClientRepo {
	return &memClientRepo{rows: map[string]*domain.Client{}, dependents: map[string]bool{}}
}

func (r *memClientRepo) Create(_ context.Context, c *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *memClientRepo) GetByID(_ context.Context, orgID, id string) (*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memClientRepo) List(_ context.Context, orgID string, f domain.ClientFilter) ([]*domain.Client, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Client{}
	for _, c := range r.rows {
		if c.OrganizationID == orgID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *memClientRepo) Update(_ context.Context, c *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *memClientRepo) Delete(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; !ok || c.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memClientRepo) HasDependents(_ context.Context, _, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dependents[id], nil
}

func (r *memClientRepo) Count(_ context.Context, orgID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.rows {
		if c.OrganizationID == orgID && !c.Archived {
			n++
		}
	}
	return n, nil
}

type memInvoiceRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Invoice
	seq  map[string]int64
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{rows: map[string]*domain.Invoice{}, seq: map[string]int64{}}
}

func (r *memInvoiceRepo) Create(_ context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	key := inv.OrganizationID + inv.IssueDate.Format("200601")
	r.seq[key]++
	inv.Number = domain.FormatInvoiceNumber(inv.IssueDate, r.seq[key])
	r.store(inv)
	return nil
}

func (r *memInvoiceRepo) store(inv *domain.Invoice) {
	cp := *inv
	cp.Items = append([]domain.LineItem(nil), inv.Items...)
	r.rows[inv.ID] = &cp
}

func (r *memInvoiceRepo) GetByID(_ context.Context, orgID, id string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok || inv.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	cp.Items = append([]domain.LineItem(nil), inv.Items...)
	return &cp, nil
}

func (r *memInvoiceRepo) List(_ context.Context, orgID string, f domain.InvoiceFilter) ([]*domain.Invoice, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Invoice{}
	for _, inv := range r.rows {
		if inv.OrganizationID == orgID && (f.Status == "" || inv.Status == f.Status) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memInvoiceRepo) Update(_ context.Context, inv *domain.Invoice) error {
	return r.save(inv, domain.InvoiceDraft)
}

func (r *memInvoiceRepo) UpdateStatus(_ context.Context, inv *domain.Invoice, from domain.InvoiceStatus) error {
	return r.save(inv, from)
}

func (r *memInvoiceRepo) save(inv *domain.Invoice, from domain.InvoiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrInvalidTransition
	}
	r.store(inv)
	return nil
}

func (r *memInvoiceRepo) Delete(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.rows[id]; !ok || inv.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memInvoiceRepo) MarkOverdue(_ context.Context, today time.Time) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Invoice{}
	for _, inv := range r.rows {
		if inv.IsOverdue(today) {
			inv.Status = domain.InvoiceOverdue
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memContractRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Contract
}

func newMemContractRepo() *memContractRepo {
	return &memContractRepo{rows: map[string]*domain.Contract{}}
}

func (r *memContractRepo) Create(_ context.Context, c *domain.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *memContractRepo) GetByID(_ context.Context, orgID, id string) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memContractRepo) List(_ context.Context, orgID string, _ domain.ContractFilter) ([]*domain.Contract, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Contract{}
	for _, c := range r.rows {
		if c.OrganizationID == orgID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memContractRepo) Update(_ context.Context, c *domain.Contract, from domain.ContractStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrInvalidTransition
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *memContractRepo) Delete(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; !ok || c.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memContractRepo) ExpireEnded(_ context.Context, today time.Time) ([]*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Contract{}
	for _, c := range r.rows {
		if c.Status == domain.ContractActive && c.EndDate != nil && c.EndDate.Before(today) {
			c.Status = domain.ContractExpired
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memContractRepo) CountActive(_ context.Context, orgID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.rows {
		if c.OrganizationID == orgID && c.Status == domain.ContractActive {
			n++
		}
	}
	return n, nil
}

type memExpenseRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Expense
}

func newMemExpenseRepo() *memExpenseRepo {
	return &memExpenseRepo{rows: map[string]*domain.Expense{}}
}

func (r *memExpenseRepo) Create(_ context.Context, e *domain.Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	r.rows[e.ID] = &cp
	return nil
}

func (r *memExpenseRepo) GetByID(_ context.Context, orgID, id string) (*domain.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memExpenseRepo) List(_ context.Context, orgID string, f domain.ExpenseFilter) ([]*domain.Expense, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Expense{}
	for _, e := range r.rows {
		if e.OrganizationID == orgID && (f.Status == "" || e.Status == f.Status) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memExpenseRepo) Update(_ context.Context, e *domain.Expense, from domain.ExpenseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[e.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrInvalidTransition
	}
	cp := *e
	r.rows[e.ID] = &cp
	return nil
}

func (r *memExpenseRepo) Delete(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[id]; !ok || e.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type memAttachmentRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.Attachment
	failErr error
}

func newMemAttachmentRepo() *memAttachmentRepo {
	return &memAttachmentRepo{rows: map[string]*domain.Attachment{}}
}

func (r *memAttachmentRepo) Create(_ context.Context, a *domain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	a.CreatedAt = testNow
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *memAttachmentRepo) GetByID(_ context.Context, orgID, id string) (*domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAttachmentRepo) ListByEntity(_ context.Context, orgID string, t domain.EntityType, entityID string) ([]*domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Attachment{}
	for _, a := range r.rows {
		if a.OrganizationID == orgID && a.EntityType == t && a.EntityID == entityID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAttachmentRepo) Delete(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; !ok || a.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type memObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memObjectStorage) Upload(_ context.Context, path, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	s.types[path] = contentType
	return nil
}

func (s *memObjectStorage) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?expires=%d", path, int(ttl.Seconds())), nil
}

func (s *memObjectStorage) Remove(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (r *memAuditRepo) Insert(_ context.Context, e *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, orgID string, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.AuditEntry{}
	for _, e := range r.entries {
		if e.OrganizationID == orgID && (f.Action == "" || e.Action == f.Action) {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingMembershipCache struct {
	mu          sync.Mutex
	invalidated []string
	orgs        []string
}

func (c *recordingMembershipCache) Invalidate(orgID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, memberKey(orgID, userID))
}

func (c *recordingMembershipCache) InvalidateOrg(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orgs = append(c.orgs, orgID)
}

type fakeIdentityProvider struct {
	users       map[string]string
	confirm     bool
	signedOut   []string
	recovered   []string
	refreshSeen string
}

func newFakeIdentityProvider() *fakeIdentityProvider {
	return &fakeIdentityProvider{users: map[string]string{}}
}

func (p *fakeIdentityProvider) session(email string) *domain.Session {
	return &domain.Session{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		ExpiresIn:    3600,
		Identity:     domain.Identity{ID: "uid-" + email, Email: email, FullName: "Test User"},
	}
}

func (p *fakeIdentityProvider) SignUp(_ context.Context, email, password, fullName string) (*domain.Identity, *domain.Session, error) {
	if _, ok := p.users[email]; ok {
		return nil, nil, domain.ErrConflict
	}
	p.users[email] = password
	id := &domain.Identity{ID: "uid-" + email, Email: email, FullName: fullName}
	if p.confirm {
		return id, nil, nil
	}
	return id, p.session(email), nil
}

func (p *fakeIdentityProvider) SignIn(_ context.Context, email, password string) (*domain.Session, error) {
	if pw, ok := p.users[email]; !ok || pw != password {
		return nil, domain.ErrUnauthenticated
	}
	return p.session(email), nil
}

func (p *fakeIdentityProvider) Refresh(_ context.Context, refreshToken string) (*domain.Session, error) {
	p.refreshSeen = refreshToken
	return &domain.Session{AccessToken: "rotated", RefreshToken: "rotated-refresh", ExpiresIn: 3600}, nil
}

func (p *fakeIdentityProvider) SignOut(_ context.Context, accessToken string) error {
	p.signedOut = append(p.signedOut, accessToken)
	return nil
}

func (p *fakeIdentityProvider) Recover(_ context.Context, email string) error {
	p.recovered = append(p.recovered, email)
	return nil
}

// fixture wires every service against in-memory repositories
type fixture struct {
	orgs        *memOrgRepo
	members     *memMembershipRepo
	users       *memUserRepo
	invitations *memInvitationRepo
	checkouts   *memCheckoutRepo
	clients     *memClientRepo
	invoices    *memInvoiceRepo
	contracts   *memContractRepo
	expenses    *memExpenseRepo
	attachments *memAttachmentRepo
	storage     *memObjectStorage
	audit       *memAuditRepo
	events      *recordingPublisher
	cache       *recordingMembershipCache
	tokens      *auth.TokenManager
	common      Common
}

func newFixture() *fixture {
	f := &fixture{
		members:     newMemMembershipRepo(),
		users:       newMemUserRepo(),
		clients:     newMemClientRepo(),
		invoices:    newMemInvoiceRepo(),
		contracts:   newMemContractRepo(),
		expenses:    newMemExpenseRepo(),
		attachments: newMemAttachmentRepo(),
		storage:     newMemObjectStorage(),
		audit:       &memAuditRepo{},
		events:      &recordingPublisher{},
		cache:       &recordingMembershipCache{},
		tokens:      auth.NewTokenManager("test-secret", ""),
	}
	f.orgs = newMemOrgRepo(f.members)
	f.checkouts = newMemCheckoutRepo(f.orgs)
	f.invitations = newMemInvitationRepo(f.members)
	f.common = Common{
		Orgs:   f.orgs,
		Events: f.events,
		Now:    fixedNow,
	}
	f.common.Audit = audit.NewLogger(f.audit, nil)
	return f
}

// seedOrg stores an organization in the given state with an owner membership
func (f *fixture) seedOrg(status domain.SubscriptionStatus) *domain.Organization {
	org := &domain.Organization{
		ID:                 uuid.NewString(),
		Name:               "Acme",
		Slug:               "acme-" + uuid.NewString()[:6],
		Currency:           "USD",
		SubscriptionStatus: status,
		CreatedBy:          "owner-1",
	}
	switch status {
	case domain.SubscriptionTrialing:
		end := testNow.AddDate(0, 0, 10)
		org.TrialEndsAt = &end
	case domain.SubscriptionActive, domain.SubscriptionCanceling:
		end := testNow.AddDate(0, 0, 20)
		org.Plan = "pro"
		org.CurrentPeriodEnd = &end
	}
	f.orgs.put(org)
	_ = f.members.Create(context.Background(), &domain.Membership{OrganizationID: org.ID, UserID: "owner-1", Role: domain.RoleOwner})
	return org
}

// member adds userID with role to org and returns the membership
func (f *fixture) member(org *domain.Organization, userID string, role domain.Role) *domain.Membership {
	m := &domain.Membership{OrganizationID: org.ID, UserID: userID, Role: role}
	if existing, err := f.members.Get(context.Background(), org.ID, userID); err == nil {
		return existing
	}
	_ = f.members.Create(context.Background(), m)
	return m
}

func (f *fixture) seedClient(org *domain.Organization, name string) *domain.Client {
	c := &domain.Client{OrganizationID: org.ID, Name: name}
	_ = f.clients.Create(context.Background(), c)
	return c
}

var testPlans = map[string]domain.Plan{
	"starter": {ID: "starter", Name: "Starter", Seats: 3, Interval: 30 * 24 * time.Hour},
	"pro":     {ID: "pro", Name: "Pro", Seats: 10, Interval: 30 * 24 * time.Hour},
}
