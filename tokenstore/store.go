// Package tokenstore provides the uniform get/set/invalidate contract for
// cached session tokens and its two tiers: Local, scoped to one process,
// and Shared, scoped to every process using the same backing cache.
//
// Use a Factory to pick the tier an auth type requires.
package tokenstore

import (
	"context"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/tokencache"
)

// Store caches session tokens per (principal, config, auth type).
//
// A miss is reported as false, never as an error. Implementations that can
// fail internally degrade to a miss or a no-op.
type Store interface {
	// Get returns a usable entry, applying the expiry buffer.
	Get(ctx context.Context, principalID, configID int64, authType authtype.Type) (tokencache.Entry, bool)
	// Set stores entry, replacing any previous one.
	Set(ctx context.Context, principalID, configID int64, authType authtype.Type, entry tokencache.Entry)
	// Invalidate drops the entry so the next Get misses.
	Invalidate(ctx context.Context, principalID, configID int64, authType authtype.Type)
}
