package tokenstore

import (
	"errors"
	"fmt"

	"github.com/jmcleod/sessionkeep/authtype"
)

// ErrNoSharedStore is returned when an auth type requires the shared tier
// but no shared backend was configured.
var ErrNoSharedStore = errors.New("shared token store not configured")

// Factory maps an auth type to the Store its tier requires. It holds no
// state of its own beyond the two stores it hands out.
type Factory struct {
	local  *Local
	shared *Shared
}

// NewFactory returns a Factory. shared may be nil when no backend is
// configured; auth types bound to the shared tier then fail to resolve.
func NewFactory(local *Local, shared *Shared) *Factory {
	return &Factory{local: local, shared: shared}
}

// Local returns the process-local store.
func (f *Factory) Local() *Local {
	return f.local
}

// Resolve returns the store for authType.
func (f *Factory) Resolve(authType authtype.Type) (Store, error) {
	tier, ok := authType.Tier()
	if !ok {
		return nil, fmt.Errorf("%q: %w", authType, authtype.ErrUnknown)
	}
	switch tier {
	case authtype.TierShared:
		if f.shared == nil {
			return nil, fmt.Errorf("%s: %w", authType, ErrNoSharedStore)
		}
		return f.shared, nil
	case authtype.TierLocal:
		return f.local, nil
	default:
		return nil, fmt.Errorf("%s: unsupported tier %s", authType, tier)
	}
}
