package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/security/auth"
	"github.com/aryan0dhankhar/bizdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// testUserHeader names the caller in tests instead of a signed bearer token
const testUserHeader = "X-Test-User"

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServer runs the real router over in-memory repositories
type testServer struct {
	*httptest.Server
	orgs    *stubOrgRepo
	members *stubMembershipRepo
	clients *memClientRepo
}

func newTestServer(t *testing.T, hs *Handlers) *testServer {
	t.Helper()
	ts := &testServer{
		orgs:    &stubOrgRepo{orgs: map[string]*domain.Organization{}},
		members: &stubMembershipRepo{rows: map[string]*domain.Membership{}},
		clients: &memClientRepo{rows: map[string]*domain.Client{}},
	}
	log := testLogger()
	common := service.Common{Orgs: ts.orgs, Logger: log, Now: func() time.Time { return testNow }}
	if hs.Health == nil {
		hs.Health = NewHealthHandler(nil, log)
	}
	if hs.Clients == nil {
		hs.Clients = NewClientHandler(service.NewClientService(common, ts.clients), log)
	}

	resolver := middleware.NewMembershipResolver(ts.members, time.Minute, nil, log)
	mux := hs.Routes(resolver.RequireMembership)
	ts.Server = httptest.NewServer(withTestUser(mux))
	t.Cleanup(ts.Close)
	return ts
}

func withTestUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get(testUserHeader); user != "" {
			claims := &auth.Claims{Email: user + "@example.test"}
			claims.Subject = user
			r = r.WithContext(middleware.WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// seedOrg creates an organization with the given subscription status
func (ts *testServer) seedOrg(status domain.SubscriptionStatus) *domain.Organization {
	org := &domain.Organization{
		ID:                 uuid.NewString(),
		Name:               "Acme",
		Slug:               "acme-" + uuid.NewString()[:8],
		Currency:           "USD",
		SubscriptionStatus: status,
	}
	ts.orgs.mu.Lock()
	ts.orgs.orgs[org.ID] = org
	ts.orgs.mu.Unlock()
	return org
}

func (ts *testServer) addMember(org *domain.Organization, userID string, role domain.Role) {
	ts.members.mu.Lock()
	defer ts.members.mu.Unlock()
	ts.members.rows[org.ID+"/"+userID] = &domain.Membership{
		ID: uuid.NewString(), OrganizationID: org.ID, UserID: userID, Role: role,
	}
}

// do sends a request as user; body is JSON-encoded unless it is already a string
func (ts *testServer) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// stubOrgRepo serves the organization lookups services need before a write
type stubOrgRepo struct {
	domain.OrganizationRepository
	mu   sync.Mutex
	orgs map[string]*domain.Organization
}

func (r *stubOrgRepo) GetByID(_ context.Context, id string) (*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type stubMembershipRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Membership
}

func (r *stubMembershipRepo) Get(_ context.Context, orgID, userID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[orgID+"/"+userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

type memClientRepo struct {
	mu         sync.Mutex
	rows       map[string]*domain.Client
	dependents map[string]bool
}

func (r *memClientRepo) Create(_ context.Context, c *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = testNow, testNow
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
	var matched []*domain.Client
	for _, c := range r.rows {
		if c.OrganizationID != orgID {
			continue
		}
		if f.Archived != nil && c.Archived != *f.Archived {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Query)) {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return matched[f.Offset:end], total, nil
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
		if c.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}
