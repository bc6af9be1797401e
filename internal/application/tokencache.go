package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
	"github.com/ericfisherdev/cltsim/internal/platform/metrics"
)

const (
	// renewalTimeout bounds the shared renewal call, which runs detached from
	// any single caller's cancellation.
	renewalTimeout = 20 * time.Second

	// expiryLeeway is subtracted from a JWT's exp claim so a token is renewed
	// before the platform starts rejecting it.
	expiryLeeway = 30 * time.Second

	renewalKey = "token"
)

// TokenCache owns the process-wide platform credential. Concurrent callers
// that find the cache empty share a single renewal call.
type TokenCache struct {
	issuer  driven.TokenIssuer
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time // zero when the token carries no exp claim

	group singleflight.Group
}

// NewTokenCache creates a TokenCache backed by issuer. m and logger may be nil.
func NewTokenCache(issuer driven.TokenIssuer, m *metrics.Metrics, logger *slog.Logger) *TokenCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCache{
		issuer:  issuer,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for expiry checks. Intended for tests.
func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

// Token returns the cached credential, renewing it first if the cache is
// empty or the credential is known to be expired. Renewal failures are
// returned as KindAuth errors and leave the cache empty.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	// The renewal is shared, so it must not die with the first caller.
	ch := c.group.DoChan(renewalKey, func() (any, error) {
		return c.renew(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate clears the cached credential unconditionally.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// Do runs call with the current credential. If call reports
// model.ErrUnauthorized, the credential is dropped, a fresh one is obtained
// and call is retried exactly once. A second unauthorized answer is returned
// as a KindAuth error.
func (c *TokenCache) Do(ctx context.Context, call func(ctx context.Context, token string) error) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if !errors.Is(err, model.ErrUnauthorized) {
		return err
	}

	c.logger.Warn("platform rejected access token, renewing")
	c.invalidateIfCurrent(token)

	token, err = c.Token(ctx)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if errors.Is(err, model.ErrUnauthorized) {
		return model.NewError(model.KindAuth, "call_with_token", "access token rejected after renewal", err)
	}
	return err
}

// cached returns the current credential if it is present and not expired.
func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", false
	}
	if !c.expiresAt.IsZero() && !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// invalidateIfCurrent drops the credential only while it is still the one
// that was rejected; a concurrent caller may already have renewed it.
func (c *TokenCache) invalidateIfCurrent(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == rejected {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

// renew performs the single shared renewal call.
func (c *TokenCache) renew(ctx context.Context) (string, error) {
	// A caller may have finished a renewal between our cache miss and this call.
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ctx, cancel := context.WithTimeout(ctx, renewalTimeout)
	defer cancel()

	start := c.now()
	token, err := c.issuer.IssueToken(ctx)
	if err == nil && token == "" {
		err = errors.New("empty access token")
	}
	if err != nil {
		c.metrics.ObserveTokenRenewal("error")
		c.logger.Error("access token renewal failed", "error", err)
		return "", model.NewError(model.KindAuth, "renew_token", "access token renewal failed", err)
	}

	expiresAt := tokenExpiry(token)

	c.mu.Lock()
	c.token = token
	c.expiresAt = expiresAt
	c.mu.Unlock()

	c.metrics.ObserveTokenRenewal("ok")
	c.logger.Info("access token renewed",
		"duration", c.now().Sub(start).Round(time.Millisecond),
		"has_expiry", !expiresAt.IsZero(),
	)
	return token, nil
}

// tokenExpiry reads the exp claim of a JWT access token without verifying its
// signature. Opaque tokens, or JWTs without exp, return the zero time.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Add(-expiryLeeway)
}
