package tokenstore

import (
	"context"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/tokencache"
)

// Local is a Store over a process-wide tokencache.Cache.
type Local struct {
	cache *tokencache.Cache
}

var _ Store = (*Local)(nil)

// NewLocal returns a Local store over cache.
func NewLocal(cache *tokencache.Cache) *Local {
	return &Local{cache: cache}
}

// Cache returns the underlying cache, whose per-key locks callers use to
// serialize sign-in.
func (s *Local) Cache() *tokencache.Cache {
	return s.cache
}

func (s *Local) Get(_ context.Context, principalID, configID int64, authType authtype.Type) (tokencache.Entry, bool) {
	return s.cache.Get(tokencache.Key{PrincipalID: principalID, ConfigID: configID, AuthType: authType})
}

func (s *Local) Set(_ context.Context, principalID, configID int64, authType authtype.Type, entry tokencache.Entry) {
	s.cache.Set(tokencache.Key{PrincipalID: principalID, ConfigID: configID, AuthType: authType}, entry)
}

func (s *Local) Invalidate(_ context.Context, principalID, configID int64, authType authtype.Type) {
	s.cache.Invalidate(tokencache.Key{PrincipalID: principalID, ConfigID: configID, AuthType: authType})
}
