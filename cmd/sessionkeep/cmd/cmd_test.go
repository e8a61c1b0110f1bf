package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/config"
	"github.com/jmcleod/sessionkeep/credstore"
	"github.com/jmcleod/sessionkeep/secret"
	"github.com/jmcleod/sessionkeep/session"
	"github.com/jmcleod/sessionkeep/tokencache"
	"github.com/jmcleod/sessionkeep/tokenstore"
)

var quiet = slog.New(slog.DiscardHandler)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return strings.TrimSpace(out.String()), err
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "", "keygen")
	require.NoError(t, err)
	raw, err := base64.URLEncoding.DecodeString(out)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("SESSIONKEEP_SECRETS__APP_SECRET", "app-secret")

	enc, err := execute(t, "", "encrypt", "hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "v1:"))

	plain, err := execute(t, "", "decrypt", enc)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	plain, err = execute(t, enc+"\n", "decrypt")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestEncryptFromStdin(t *testing.T) {
	t.Setenv("SESSIONKEEP_SECRETS__APP_SECRET", "app-secret")

	enc, err := execute(t, "from stdin\n", "encrypt")
	require.NoError(t, err)

	cipher, err := secret.NewCipher("", "app-secret", secret.WithLogger(quiet))
	require.NoError(t, err)
	plain, err := cipher.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", plain)
}

func TestDecryptWithRotatedKey(t *testing.T) {
	t.Setenv("SESSIONKEEP_SECRETS__APP_SECRET", "app-secret")
	key, err := execute(t, "", "keygen")
	require.NoError(t, err)

	enc, err := execute(t, "", "encrypt", "--encryption-key", key, "hunter2")
	require.NoError(t, err)

	_, err = execute(t, "", "decrypt", enc)
	require.ErrorIs(t, err, secret.ErrKeyMismatch)
	assert.Contains(t, err.Error(), "key source: derived")

	plain, err := execute(t, "", "decrypt", "--encryption-key", key, enc)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestEncryptRequiresAppSecret(t *testing.T) {
	t.Setenv("SESSIONKEEP_SECRETS__APP_SECRET", "")
	_, err := execute(t, "", "encrypt", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func testConfig(t *testing.T, backend config.Backend) *config.Config {
	t.Helper()
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Secrets: config.SecretsConfig{AppSecret: "app-secret"},
		Shared:  config.SharedConfig{Backend: backend},
		Credentials: config.CredentialsConfig{
			Backend: backend,
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestOpenServices(t *testing.T) {
	for _, backend := range []config.Backend{config.BackendMemory, config.BackendBolt} {
		t.Run(string(backend), func(t *testing.T) {
			cfg := testConfig(t, backend)
			svc, err := openServices(t.Context(), cfg, quiet, nil)
			require.NoError(t, err)
			defer func() { require.NoError(t, svc.Close()) }()

			store, err := svc.factory.Resolve(authtype.PAT)
			require.NoError(t, err)
			require.IsType(t, &tokenstore.Shared{}, store)

			entry := tokencache.Entry{Token: "t", ExpiresAt: time.Now().Add(time.Hour)}
			store.Set(t.Context(), 1, 2, authtype.PAT, entry)
			got, ok := store.Get(t.Context(), 1, 2, authtype.PAT)
			require.True(t, ok)
			assert.Equal(t, "t", got.Token)
		})
	}
}

func TestOpenServicesBoltFiles(t *testing.T) {
	cfg := testConfig(t, config.BackendBolt)
	svc, err := openServices(t.Context(), cfg, quiet, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	assert.FileExists(t, filepath.Join(cfg.DataDir, "token_cache.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "credentials.db"))
}

func TestRouter(t *testing.T) {
	svc, err := openServices(t.Context(), testConfig(t, config.BackendMemory), quiet, nil)
	require.NoError(t, err)
	defer svc.Close()

	srv := httptest.NewServer(newRouter(svc, quiet))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/api/v1/auth-types")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestOpenServicesWiresSessionManager(t *testing.T) {
	environ := func() []string {
		return []string{
			"SESSIONKEEP_SECRETS__APP_SECRET=app-secret",
			"SESSIONKEEP_CACHE__LOCK_TIMEOUT=250ms",
			"SESSIONKEEP_SHARED__BACKEND=memory",
			"SESSIONKEEP_CREDENTIALS__BACKEND=memory",
		}
	}
	cfg, err := config.Load("", environ, nil)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.Cache.LockTimeout)

	var seen credstore.Credential
	auth := session.AuthenticatorFunc(func(_ context.Context, _ session.Request, creds credstore.Credential) (tokencache.Entry, error) {
		seen = creds
		return tokencache.Entry{Token: "signed-in", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})
	svc, err := openServices(t.Context(), cfg, quiet, auth)
	require.NoError(t, err)
	defer svc.Close()

	require.NotNil(t, svc.manager)
	assert.Equal(t, 250*time.Millisecond, svc.manager.LockTimeout())

	ref := credstore.Ref{PrincipalID: 1, ConfigID: 2, Kind: credstore.KindPassword}
	require.NoError(t, svc.vault.Save(t.Context(), ref, "alice", "pw"))
	_, err = svc.manager.Token(t.Context(), session.Request{PrincipalID: 1, ConfigID: 2, AuthType: authtype.Standard})
	require.NoError(t, err)
	assert.Equal(t, credstore.Credential{Name: "alice", Secret: "pw"}, seen)

	srv := httptest.NewServer(newRouter(svc, quiet))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats session.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.SignIns)
}

func TestOpenServicesWithoutAuthenticator(t *testing.T) {
	svc, err := openServices(t.Context(), testConfig(t, config.BackendMemory), quiet, nil)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.manager.Token(t.Context(), session.Request{PrincipalID: 1, ConfigID: 1, AuthType: authtype.TrustJWT})
	require.ErrorIs(t, err, session.ErrNoAuthenticator)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Server.Port = 0
	cfg.Shared.SweepInterval = 10 * time.Millisecond
	svc, err := openServices(t.Context(), cfg, quiet, nil)
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, svc, quiet) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) Sweep(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestRunSweeper(t *testing.T) {
	for _, sweepErr := range []error{nil, errors.New("backend down")} {
		sweeper := &countingSweeper{err: sweepErr}
		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan struct{})
		go func() {
			runSweeper(ctx, sweeper, 5*time.Millisecond, quiet)
			close(done)
		}()

		require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		<-done
	}
}
