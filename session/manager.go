// Package session hands out analytics platform session tokens, signing in
// only when no usable token is cached for the requested principal, config
// and auth type.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/credstore"
	"github.com/jmcleod/sessionkeep/tokencache"
	"github.com/jmcleod/sessionkeep/tokenstore"
)

// ErrUnauthorized must be wrapped by callers of Do when the platform answers
// 401, so the cached token is dropped and the call retried once.
var ErrUnauthorized = errors.New("analytics platform rejected the session token")

// ErrNoAuthenticator is returned by sign-ins of a Manager built without an
// Authenticator. Tokens already cached are still served.
var ErrNoAuthenticator = errors.New("no authenticator configured")

// Request identifies the token a caller needs.
type Request struct {
	PrincipalID int64
	ConfigID    int64
	AuthType    authtype.Type
}

func (r Request) key() tokencache.Key {
	return tokencache.Key{PrincipalID: r.PrincipalID, ConfigID: r.ConfigID, AuthType: r.AuthType}
}

// Authenticator performs the sign-in call. creds is empty for auth types
// that use no stored credential.
type Authenticator interface {
	SignIn(ctx context.Context, req Request, creds credstore.Credential) (tokencache.Entry, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, req Request, creds credstore.Credential) (tokencache.Entry, error)

func (f AuthenticatorFunc) SignIn(ctx context.Context, req Request, creds credstore.Credential) (tokencache.Entry, error) {
	return f(ctx, req, creds)
}

// credentialKinds maps auth types to the stored credential they sign in with.
var credentialKinds = map[authtype.Type]credstore.Kind{
	authtype.PAT:         credstore.KindPATSecret,
	authtype.Standard:    credstore.KindPassword,
	authtype.OAuth2Trust: credstore.KindClientSecret,
}

// Stats counts Manager outcomes since construction.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	SignIns  int64 `json:"sign_ins"`
	Failures int64 `json:"failures"`
}

// Manager coordinates token lookups and sign-ins.
type Manager struct {
	factory     *tokenstore.Factory
	locks       *tokencache.Cache
	auth        Authenticator
	vault       *credstore.Vault
	lockTimeout time.Duration
	logger      *slog.Logger

	hits, misses, signIns, failures atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithCredentials makes the Manager reveal stored credentials for auth
// types that need one and pass them to the Authenticator.
func WithCredentials(vault *credstore.Vault) Option {
	return func(m *Manager) {
		m.vault = vault
	}
}

// WithLockTimeout bounds how long Token waits for another caller's sign-in.
// Zero waits as long as the request context allows.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.lockTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns a Manager. Sign-ins are serialized with the per-key
// locks of the factory's local cache. A nil auth makes every sign-in fail
// with ErrNoAuthenticator.
func NewManager(factory *tokenstore.Factory, auth Authenticator, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		locks:   factory.Local().Cache(),
		auth:    auth,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.auth == nil {
		m.auth = AuthenticatorFunc(func(context.Context, Request, credstore.Credential) (tokencache.Entry, error) {
			return tokencache.Entry{}, ErrNoAuthenticator
		})
	}
	return m
}

// LockTimeout returns the longest Token waits for another caller's sign-in.
func (m *Manager) LockTimeout() time.Duration {
	return m.lockTimeout
}

// Token returns a usable session token for req, signing in if necessary.
// Concurrent calls for the same request in this process share one sign-in.
func (m *Manager) Token(ctx context.Context, req Request) (tokencache.Entry, error) {
	store, err := m.factory.Resolve(req.AuthType)
	if err != nil {
		return tokencache.Entry{}, err
	}
	if entry, ok := store.Get(ctx, req.PrincipalID, req.ConfigID, req.AuthType); ok {
		m.hits.Add(1)
		return entry, nil
	}

	lock := m.locks.LockFor(req.key())
	if err := m.acquire(ctx, lock); err != nil {
		return tokencache.Entry{}, err
	}
	defer lock.Unlock()

	// A caller ahead of us may have signed in while we waited.
	if entry, ok := store.Get(ctx, req.PrincipalID, req.ConfigID, req.AuthType); ok {
		m.hits.Add(1)
		return entry, nil
	}
	m.misses.Add(1)

	creds, err := m.credentials(ctx, req)
	if err != nil {
		m.failures.Add(1)
		return tokencache.Entry{}, err
	}

	entry, err := m.auth.SignIn(ctx, req, creds)
	if err != nil {
		m.failures.Add(1)
		m.logger.WarnContext(ctx, "sign-in failed",
			slog.Int64("principal_id", req.PrincipalID),
			slog.Int64("config_id", req.ConfigID),
			slog.String("auth_type", req.AuthType.String()),
			slog.String("error", err.Error()))
		return tokencache.Entry{}, fmt.Errorf("signing in %s: %w", req.key(), err)
	}
	m.signIns.Add(1)
	m.logger.InfoContext(ctx, "signed in",
		slog.Int64("principal_id", req.PrincipalID),
		slog.Int64("config_id", req.ConfigID),
		slog.String("auth_type", req.AuthType.String()),
		slog.Time("expires_at", entry.ExpiresAt))

	store.Set(ctx, req.PrincipalID, req.ConfigID, req.AuthType, entry)
	return entry, nil
}

func (m *Manager) acquire(ctx context.Context, lock *tokencache.KeyLock) error {
	lockCtx := ctx
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}
	if err := lock.Lock(lockCtx); err != nil {
		m.failures.Add(1)
		return err
	}
	return nil
}

func (m *Manager) credentials(ctx context.Context, req Request) (credstore.Credential, error) {
	kind, ok := credentialKinds[req.AuthType]
	if !ok || m.vault == nil {
		return credstore.Credential{}, nil
	}
	creds, err := m.vault.Reveal(ctx, credstore.Ref{PrincipalID: req.PrincipalID, ConfigID: req.ConfigID, Kind: kind})
	if err != nil {
		return credstore.Credential{}, fmt.Errorf("loading %s credential: %w", kind, err)
	}
	return creds, nil
}

// Unauthorized drops the cached token for req after the platform rejected
// it. It is best-effort and never fails.
func (m *Manager) Unauthorized(ctx context.Context, req Request) {
	store, err := m.factory.Resolve(req.AuthType)
	if err != nil {
		m.logger.WarnContext(ctx, "cannot invalidate token",
			slog.String("auth_type", req.AuthType.String()),
			slog.String("error", err.Error()))
		return
	}
	store.Invalidate(ctx, req.PrincipalID, req.ConfigID, req.AuthType)
}

// Do calls fn with a token for req. If fn reports ErrUnauthorized the token
// is invalidated and fn is retried once with a fresh one.
func (m *Manager) Do(ctx context.Context, req Request, fn func(ctx context.Context, entry tokencache.Entry) error) error {
	entry, err := m.Token(ctx, req)
	if err != nil {
		return err
	}
	err = fn(ctx, entry)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	m.Unauthorized(ctx, req)
	entry, err = m.Token(ctx, req)
	if err != nil {
		return err
	}
	return fn(ctx, entry)
}

// Stats returns a snapshot of the Manager's counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:     m.hits.Load(),
		Misses:   m.misses.Load(),
		SignIns:  m.signIns.Load(),
		Failures: m.failures.Load(),
	}
}
