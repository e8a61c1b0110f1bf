package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/tokencache"
	"github.com/jmcleod/sessionkeep/tokenstore/kv"
)

const (
	// DefaultService prefixes every shared cache key.
	DefaultService = "sessionkeep"
	// DefaultSharedTTL is kept below the platform's ~8 minute PAT session
	// lifetime so entries lapse before the platform expires them.
	DefaultSharedTTL = 7 * time.Minute
)

// ErrStoreUnavailable wraps backing cache failures reported to the error
// handler. Shared never returns it to Store callers.
var ErrStoreUnavailable = errors.New("shared token store unavailable")

// Shared is a Store over a kv.Backend visible to all worker processes.
//
// Shared fails open: when the backend cannot be reached, Get misses and
// Set/Invalidate do nothing, so callers fall back to signing in again.
type Shared struct {
	backend kv.Backend
	service string
	ttl     time.Duration
	buffer  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	onError func(error)
}

var _ Store = (*Shared)(nil)

// SharedOption configures a Shared store.
type SharedOption func(*Shared)

// WithService sets the key prefix. Defaults to DefaultService.
func WithService(service string) SharedOption {
	return func(s *Shared) {
		s.service = service
	}
}

// WithTTL sets the time-to-live applied on write. Defaults to DefaultSharedTTL.
func WithTTL(ttl time.Duration) SharedOption {
	return func(s *Shared) {
		s.ttl = ttl
	}
}

// WithSharedExpiryBuffer overrides tokencache.DefaultExpiryBuffer.
func WithSharedExpiryBuffer(d time.Duration) SharedOption {
	return func(s *Shared) {
		s.buffer = d
	}
}

// WithSharedClock replaces time.Now, for tests.
func WithSharedClock(now func() time.Time) SharedOption {
	return func(s *Shared) {
		s.now = now
	}
}

// WithLogger sets the logger used for degraded operations.
func WithLogger(logger *slog.Logger) SharedOption {
	return func(s *Shared) {
		s.logger = logger
	}
}

// WithErrorHandler registers fn to receive every backend failure, wrapped
// in ErrStoreUnavailable, after it has been logged.
func WithErrorHandler(fn func(error)) SharedOption {
	return func(s *Shared) {
		s.onError = fn
	}
}

// NewShared returns a Shared store over backend.
func NewShared(backend kv.Backend, opts ...SharedOption) *Shared {
	s := &Shared{
		backend: backend,
		service: DefaultService,
		ttl:     DefaultSharedTTL,
		buffer:  tokencache.DefaultExpiryBuffer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CacheKey returns the backend key for one principal and config.
func (s *Shared) CacheKey(principalID, configID int64, authType authtype.Type) string {
	return fmt.Sprintf("%s:%s:%d:%d", s.service, authType, principalID, configID)
}

// TTL returns the time-to-live applied on write.
func (s *Shared) TTL() time.Duration {
	return s.ttl
}

func (s *Shared) Get(ctx context.Context, principalID, configID int64, authType authtype.Type) (tokencache.Entry, bool) {
	key := s.CacheKey(principalID, configID, authType)
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.degraded(ctx, "get", key, err)
		return tokencache.Entry{}, false
	}
	if !ok {
		return tokencache.Entry{}, false
	}

	// Get never deletes. Unusable values lapse with their TTL, and the key
	// may already hold a newer value written by another process.
	var entry tokencache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.WarnContext(ctx, "ignoring unreadable shared token entry",
			slog.String("cache_key", key),
			slog.String("error", err.Error()))
		return tokencache.Entry{}, false
	}
	if !entry.Usable(s.now(), s.buffer) {
		return tokencache.Entry{}, false
	}
	return entry, true
}

func (s *Shared) Set(ctx context.Context, principalID, configID int64, authType authtype.Type, entry tokencache.Entry) {
	key := s.CacheKey(principalID, configID, authType)
	now := s.now()
	if !entry.Usable(now, s.buffer) {
		s.logger.DebugContext(ctx, "not caching token inside expiry buffer",
			slog.String("cache_key", key))
		return
	}

	// The backend copy lapses when the token enters the expiry buffer.
	ttl := s.ttl
	if usable := entry.ExpiresAt.Sub(now) - s.buffer; usable < ttl {
		ttl = usable
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.degraded(ctx, "encode", key, err)
		return
	}
	if err := s.backend.Set(ctx, key, data, ttl); err != nil {
		s.degraded(ctx, "set", key, err)
	}
}

func (s *Shared) Invalidate(ctx context.Context, principalID, configID int64, authType authtype.Type) {
	s.drop(ctx, s.CacheKey(principalID, configID, authType))
}

func (s *Shared) drop(ctx context.Context, key string) {
	if err := s.backend.Delete(ctx, key); err != nil {
		s.degraded(ctx, "delete", key, err)
	}
}

func (s *Shared) degraded(ctx context.Context, op, key string, err error) {
	s.logger.WarnContext(ctx, "shared token store degraded",
		slog.String("op", op),
		slog.String("cache_key", key),
		slog.String("error", err.Error()))
	if s.onError != nil {
		s.onError(fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err))
	}
}
