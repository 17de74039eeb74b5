package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/bizdesk/internal/reliability/retry"
)

// Config holds the hosted project settings
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	Bucket         string
}

// providerError is a 4xx answer from the provider; it is never retried
type providerError struct {
	status int
	msg    string
}

func (e *providerError) Error() string { return e.msg }

var statusPattern = regexp.MustCompile(`status code (\d{3})`)

// classify marks client errors permanent so they skip retries and the breaker
func classify(err error) error {
	if err == nil {
		return nil
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	code, _ := strconv.Atoi(m[1])
	if code >= 400 && code < 500 && code != 429 {
		return retry.Permanent(&providerError{status: code, msg: err.Error()})
	}
	return err
}

func isProviderError(err error) (*providerError, bool) {
	var pe *providerError
	ok := errors.As(err, &pe)
	return pe, ok
}

// guard wraps provider calls with retry and a shared circuit breaker
type guard struct {
	name    string
	retry   *retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

func newGuard(name string, logger *slog.Logger) *guard {
	if logger == nil {
		logger = slog.Default()
	}
	cb := circuitbreaker.New(5, 2, 30*time.Second)
	cb.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("supabase circuit breaker state changed",
			slog.String("client", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &guard{name: name, retry: retry.DefaultConfig(), breaker: cb, logger: logger}
}

func run[T any](ctx context.Context, g *guard, op string, fn func() (T, error)) (T, error) {
	var out T
	err := g.breaker.Do(func() error {
		v, err := retry.Do(ctx, g.retry, g.logger, g.name+"."+op, func(context.Context) (T, error) {
			v, err := fn()
			return v, classify(err)
		})
		out = v
		return err
	}, func(err error) bool {
		_, client := isProviderError(err)
		return !client
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return out, fmt.Errorf("%s temporarily unavailable: %w", g.name, domain.ErrUpstream)
	}
	return out, err
}

// upstream wraps transient failures so handlers answer 500 without leaking details
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrUpstream, err)
}
