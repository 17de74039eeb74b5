package supabase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/reliability/retry"
)

func fastAuth(ops authOps) *Auth {
	a := newAuth(ops, nil)
	a.guard.retry = &retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	return a
}

func TestSignIn_BadCredentialsNotRetried(t *testing.T) {
	calls := 0
	a := fastAuth(authOps{signIn: func(string, string) (*domain.Session, error) {
		calls++
		return nil, errors.New(`response status code 400: {"error":"invalid_grant"}`)
	}})

	_, err := a.SignIn(context.Background(), "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, 1, calls)
}

func TestSignIn_TransientRetriedThenUpstream(t *testing.T) {
	calls := 0
	a := fastAuth(authOps{signIn: func(string, string) (*domain.Session, error) {
		calls++
		return nil, errors.New("response status code 503: unavailable")
	}})

	_, err := a.SignIn(context.Background(), "ada@example.com", "password1")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 3, calls)
}

func TestSignUp_ExistingAccountConflict(t *testing.T) {
	a := fastAuth(authOps{signUp: func(string, string, string) (*domain.Identity, *domain.Session, error) {
		return nil, nil, errors.New("response status code 422: User already registered")
	}})

	_, _, err := a.SignUp(context.Background(), "ada@example.com", "password1", "Ada")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRecover_SwallowsProviderRejection(t *testing.T) {
	a := fastAuth(authOps{recover: func(string) error {
		return errors.New("response status code 404: user not found")
	}})
	assert.NoError(t, a.Recover(context.Background(), "nobody@example.com"))
}

func TestIdentityFrom(t *testing.T) {
	id := uuid.New()
	got := identityFrom(types.User{
		ID:           id,
		Email:        " Ada@Example.com ",
		UserMetadata: map[string]interface{}{"full_name": "Ada Lovelace"},
	})
	assert.Equal(t, domain.Identity{ID: id.String(), Email: "ada@example.com", FullName: "Ada Lovelace"}, got)
}

func TestStorage_UploadReplaysBodyOnRetry(t *testing.T) {
	var bodies []string
	s := newStorage(storageOps{upload: func(path, contentType string, body io.Reader) error {
		b, _ := io.ReadAll(body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			return errors.New("connection reset by peer")
		}
		return nil
	}}, nil)
	s.guard.retry = &retry.Config{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}

	err := s.Upload(context.Background(), "orgs/o/expense/e/receipt.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, []string{"%PDF", "%PDF"}, bodies)
}

func TestStorage_SignedURLRoundsTTL(t *testing.T) {
	var gotTTL int
	s := newStorage(storageOps{signedURL: func(path string, expiresIn int) (string, error) {
		gotTTL = expiresIn
		return "https://files.example/" + path + "?token=t", nil
	}}, nil)

	url, err := s.SignedURL(context.Background(), "a/b.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 900, gotTTL)
	assert.Contains(t, url, "a/b.pdf")
}

func TestClassify(t *testing.T) {
	_, client := isProviderError(classify(errors.New("response status code 401: nope")))
	assert.True(t, client)
	_, client = isProviderError(classify(errors.New("response status code 429: slow down")))
	assert.False(t, client)
	_, client = isProviderError(classify(errors.New("dial tcp: timeout")))
	assert.False(t, client)
}
