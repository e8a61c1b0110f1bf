package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/credstore"
	"github.com/jmcleod/sessionkeep/credstore/memory"
	"github.com/jmcleod/sessionkeep/secret"
	"github.com/jmcleod/sessionkeep/tokencache"
	"github.com/jmcleod/sessionkeep/tokenstore"
	kvmemory "github.com/jmcleod/sessionkeep/tokenstore/kv/memory"
)

var quiet = slog.New(slog.DiscardHandler)

type countingAuth struct {
	calls atomic.Int32
	delay time.Duration
	err   error

	mu    sync.Mutex
	creds []credstore.Credential
}

func (a *countingAuth) SignIn(_ context.Context, req Request, creds credstore.Credential) (tokencache.Entry, error) {
	n := a.calls.Add(1)
	a.mu.Lock()
	a.creds = append(a.creds, creds)
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return tokencache.Entry{}, a.err
	}
	return tokencache.Entry{
		Token:     fmt.Sprintf("%s-%d", req.AuthType, n),
		ExpiresAt: time.Now().Add(8 * time.Minute),
		SiteID:    "site",
	}, nil
}

func newFactory() *tokenstore.Factory {
	local := tokenstore.NewLocal(tokencache.New())
	shared := tokenstore.NewShared(kvmemory.New(), tokenstore.WithLogger(quiet))
	return tokenstore.NewFactory(local, shared)
}

func TestTokenSingleSignInUnderContention(t *testing.T) {
	for _, typ := range []authtype.Type{authtype.TrustJWT, authtype.PAT} {
		t.Run(string(typ), func(t *testing.T) {
			auth := &countingAuth{delay: 20 * time.Millisecond}
			m := NewManager(newFactory(), auth, WithLogger(quiet))
			req := Request{PrincipalID: 1, ConfigID: 2, AuthType: typ}

			const callers = 50
			var wg sync.WaitGroup
			start := make(chan struct{})
			tokens := make([]string, callers)
			errs := make([]error, callers)
			for i := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					entry, err := m.Token(context.Background(), req)
					tokens[i] = entry.Token
					errs[i] = err
				}()
			}
			close(start)
			wg.Wait()

			require.Equal(t, int32(1), auth.calls.Load())
			for i := range callers {
				require.NoError(t, errs[i])
				require.Equal(t, tokens[0], tokens[i])
			}
			stats := m.Stats()
			require.Equal(t, int64(1), stats.SignIns)
			require.Equal(t, int64(1), stats.Misses)
			require.Equal(t, int64(callers-1), stats.Hits)
		})
	}
}

func TestTokenCachedBetweenCalls(t *testing.T) {
	auth := &countingAuth{}
	m := NewManager(newFactory(), auth, WithLogger(quiet))
	req := Request{PrincipalID: 1, ConfigID: 2, AuthType: authtype.Standard}

	first, err := m.Token(context.Background(), req)
	require.NoError(t, err)
	second, err := m.Token(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), auth.calls.Load())
}

func TestDoRetriesOnceAfterUnauthorized(t *testing.T) {
	auth := &countingAuth{}
	m := NewManager(newFactory(), auth, WithLogger(quiet))
	req := Request{PrincipalID: 5, ConfigID: 6, AuthType: authtype.PAT}

	var seen []string
	err := m.Do(context.Background(), req, func(_ context.Context, entry tokencache.Entry) error {
		seen = append(seen, entry.Token)
		if len(seen) == 1 {
			return fmt.Errorf("GET /sites: %w", ErrUnauthorized)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"pat-1", "pat-2"}, seen)
	require.Equal(t, int32(2), auth.calls.Load())
}

func TestDoGivesUpAfterSecondUnauthorized(t *testing.T) {
	auth := &countingAuth{}
	m := NewManager(newFactory(), auth, WithLogger(quiet))
	req := Request{PrincipalID: 5, ConfigID: 6, AuthType: authtype.TrustJWT}

	calls := 0
	err := m.Do(context.Background(), req, func(context.Context, tokencache.Entry) error {
		calls++
		return ErrUnauthorized
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 2, calls)
}

func TestUnauthorizedInvalidates(t *testing.T) {
	auth := &countingAuth{}
	m := NewManager(newFactory(), auth, WithLogger(quiet))
	req := Request{PrincipalID: 1, ConfigID: 1, AuthType: authtype.OAuth2Trust}

	_, err := m.Token(context.Background(), req)
	require.NoError(t, err)
	m.Unauthorized(context.Background(), req)
	entry, err := m.Token(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "oauth2_trust-2", entry.Token)

	// Unknown auth types are logged and ignored.
	m.Unauthorized(context.Background(), Request{AuthType: "kerberos"})
}

func TestSignInFailureIsNotCached(t *testing.T) {
	boom := errors.New("invalid credentials")
	auth := &countingAuth{err: boom}
	m := NewManager(newFactory(), auth, WithLogger(quiet))
	req := Request{PrincipalID: 1, ConfigID: 1, AuthType: authtype.Standard}

	_, err := m.Token(context.Background(), req)
	require.ErrorIs(t, err, boom)
	_, err = m.Token(context.Background(), req)
	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(2), auth.calls.Load())
	require.Equal(t, int64(2), m.Stats().Failures)
}

func TestTokenLockTimeout(t *testing.T) {
	factory := newFactory()
	auth := &countingAuth{}
	m := NewManager(factory, auth, WithLogger(quiet), WithLockTimeout(20*time.Millisecond))
	req := Request{PrincipalID: 1, ConfigID: 1, AuthType: authtype.TrustJWT}

	lock := factory.Local().Cache().LockFor(req.key())
	require.NoError(t, lock.Lock(context.Background()))
	defer lock.Unlock()

	_, err := m.Token(context.Background(), req)
	require.ErrorIs(t, err, tokencache.ErrLockTimeout)
	require.Equal(t, int32(0), auth.calls.Load())
}

func TestTokenUnknownAuthType(t *testing.T) {
	m := NewManager(newFactory(), &countingAuth{}, WithLogger(quiet))
	_, err := m.Token(context.Background(), Request{AuthType: "kerberos"})
	require.ErrorIs(t, err, authtype.ErrUnknown)
}

func TestTokenPATWithoutSharedStore(t *testing.T) {
	factory := tokenstore.NewFactory(tokenstore.NewLocal(tokencache.New()), nil)
	m := NewManager(factory, &countingAuth{}, WithLogger(quiet))
	_, err := m.Token(context.Background(), Request{AuthType: authtype.PAT})
	require.ErrorIs(t, err, tokenstore.ErrNoSharedStore)
}

func TestTokenRevealsStoredCredential(t *testing.T) {
	cipher, err := secret.NewCipher("", "app-secret")
	require.NoError(t, err)
	repo := memory.NewRepository()
	vault := credstore.NewVault(repo, cipher)
	ctx := context.Background()

	require.NoError(t, vault.Save(ctx, credstore.Ref{PrincipalID: 1, ConfigID: 2, Kind: credstore.KindPATSecret}, "chat", "pat-secret"))

	auth := &countingAuth{}
	m := NewManager(newFactory(), auth, WithLogger(quiet), WithCredentials(vault))

	_, err = m.Token(ctx, Request{PrincipalID: 1, ConfigID: 2, AuthType: authtype.PAT})
	require.NoError(t, err)
	_, err = m.Token(ctx, Request{PrincipalID: 1, ConfigID: 2, AuthType: authtype.TrustJWT})
	require.NoError(t, err)

	require.Equal(t, []credstore.Credential{
		{Name: "chat", Secret: "pat-secret"},
		{},
	}, auth.creds)
}

func TestTokenUndecryptableCredentialBlocksSignIn(t *testing.T) {
	oldCipher, err := secret.NewCipher("", "old-secret")
	require.NoError(t, err)
	newCipher, err := secret.NewCipher("", "new-secret")
	require.NoError(t, err)
	repo := memory.NewRepository()
	ctx := context.Background()
	ref := credstore.Ref{PrincipalID: 1, ConfigID: 2, Kind: credstore.KindPassword}
	require.NoError(t, credstore.NewVault(repo, oldCipher).Save(ctx, ref, "alice", "hunter2"))

	auth := &countingAuth{}
	m := NewManager(newFactory(), auth, WithLogger(quiet), WithCredentials(credstore.NewVault(repo, newCipher)))

	_, err = m.Token(ctx, Request{PrincipalID: 1, ConfigID: 2, AuthType: authtype.Standard})
	require.ErrorIs(t, err, secret.ErrKeyMismatch)
	require.Equal(t, int32(0), auth.calls.Load())

	_, err = m.Token(ctx, Request{PrincipalID: 9, ConfigID: 9, AuthType: authtype.Standard})
	require.ErrorIs(t, err, credstore.ErrNotFound)
	require.Equal(t, int32(0), auth.calls.Load())
}

func TestManagerWithoutAuthenticatorServesCachedTokens(t *testing.T) {
	factory := newFactory()
	m := NewManager(factory, nil, WithLogger(quiet))
	ctx := context.Background()

	_, err := m.Token(ctx, Request{PrincipalID: 1, ConfigID: 1, AuthType: authtype.TrustJWT})
	require.ErrorIs(t, err, ErrNoAuthenticator)

	local, err := factory.Resolve(authtype.TrustJWT)
	require.NoError(t, err)
	local.Set(ctx, 1, 1, authtype.TrustJWT, tokencache.Entry{Token: "cached", ExpiresAt: time.Now().Add(time.Hour)})

	entry, err := m.Token(ctx, Request{PrincipalID: 1, ConfigID: 1, AuthType: authtype.TrustJWT})
	require.NoError(t, err)
	require.Equal(t, "cached", entry.Token)
	require.Equal(t, Stats{Hits: 1, Misses: 1, Failures: 1}, m.Stats())
}
