package tokencache

import (
	"fmt"
	"time"

	"github.com/jmcleod/sessionkeep/authtype"
)

// DefaultExpiryBuffer is subtracted from an entry's expiry when deciding
// whether it is still usable.
const DefaultExpiryBuffer = 60 * time.Second

// Entry is one issued session credential. Entries are values: a refresh
// produces a new Entry that replaces the old one under the same Key.
type Entry struct {
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	SiteID         string    `json:"site_id,omitempty"`
	SiteContentURL string    `json:"site_content_url,omitempty"`
}

// Usable reports whether the entry is still valid at now with buffer to spare.
func (e Entry) Usable(now time.Time, buffer time.Duration) bool {
	return e.Token != "" && now.Before(e.ExpiresAt.Add(-buffer))
}

// Key identifies the token of one principal against one platform config
// using one trust mechanism.
type Key struct {
	PrincipalID int64
	ConfigID    int64
	AuthType    authtype.Type
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%s", k.PrincipalID, k.ConfigID, k.AuthType)
}
