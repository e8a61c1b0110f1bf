// Package authtype enumerates the trust mechanisms used to obtain a session
// token from the analytics platform and binds each one to the storage tier
// its tokens must live in.
package authtype

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type identifies a trust mechanism.
type Type string

const (
	// TrustJWT signs a JWT with a connected-app secret and exchanges it directly.
	TrustJWT Type = "trust_jwt"
	// OAuth2Trust obtains the JWT from an external authorization server.
	OAuth2Trust Type = "oauth2_trust"
	// PAT signs in with a personal access token.
	PAT Type = "pat"
	// Standard signs in with a username and password.
	Standard Type = "standard"
)

// Tier is the storage scope a token must be cached in.
type Tier int

const (
	// TierLocal tokens are cached per process. A fresh sign-in never
	// invalidates tokens held by sibling processes.
	TierLocal Tier = iota
	// TierShared tokens are cached across all worker processes because a
	// fresh sign-in revokes every other session for the same credential.
	TierShared
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierShared:
		return "shared"
	default:
		return "unknown"
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// ErrUnknown is returned for a trust mechanism outside the registry.
var ErrUnknown = errors.New("unknown auth type")

// Info describes one registered trust mechanism.
type Info struct {
	Type        Type   `json:"type"`
	Tier        Tier   `json:"tier"`
	Description string `json:"description"`
}

var registry = []Info{
	{
		Type:        TrustJWT,
		Tier:        TierLocal,
		Description: "Direct trust: a JWT signed with the connected-app secret is exchanged for a session token.",
	},
	{
		Type:        OAuth2Trust,
		Tier:        TierLocal,
		Description: "OAuth2 trust: a JWT issued by an external authorization server is exchanged for a session token.",
	},
	{
		Type:        PAT,
		Tier:        TierShared,
		Description: "Personal access token. Signing in revokes other sessions created with the same token.",
	},
	{
		Type:        Standard,
		Tier:        TierLocal,
		Description: "Username and password sign-in.",
	},
}

// All returns every registered trust mechanism in a stable order.
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the registry entry for t.
func Lookup(t Type) (Info, bool) {
	for _, info := range registry {
		if info.Type == t {
			return info, true
		}
	}
	return Info{}, false
}

// Parse converts user or config input into a registered Type.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknown)
	}
	return t, nil
}

// Valid reports whether t is registered.
func (t Type) Valid() bool {
	_, ok := Lookup(t)
	return ok
}

// Tier returns the storage tier bound to t. Unregistered types report
// TierLocal and false.
func (t Type) Tier() (Tier, bool) {
	info, ok := Lookup(t)
	if !ok {
		return TierLocal, false
	}
	return info.Tier, true
}

func (t Type) String() string {
	return string(t)
}
