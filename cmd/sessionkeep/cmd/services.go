package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionkeep/config"
	"github.com/jmcleod/sessionkeep/credstore"
	credbolt "github.com/jmcleod/sessionkeep/credstore/bbolt"
	credmemory "github.com/jmcleod/sessionkeep/credstore/memory"
	credpostgres "github.com/jmcleod/sessionkeep/credstore/postgres"
	"github.com/jmcleod/sessionkeep/secret"
	"github.com/jmcleod/sessionkeep/session"
	"github.com/jmcleod/sessionkeep/tokencache"
	"github.com/jmcleod/sessionkeep/tokenstore"
	"github.com/jmcleod/sessionkeep/tokenstore/kv"
	kvbolt "github.com/jmcleod/sessionkeep/tokenstore/kv/bbolt"
	kvmemory "github.com/jmcleod/sessionkeep/tokenstore/kv/memory"
	kvpostgres "github.com/jmcleod/sessionkeep/tokenstore/kv/postgres"
)

// boltOptions bounds how long opening a bbolt file waits for another
// process holding its lock.
var boltOptions = &bbolt.Options{Timeout: 2 * time.Second}

// services holds the long-lived objects the server is built from.
type services struct {
	cipher  *secret.Cipher
	vault   *credstore.Vault
	backend kv.Backend
	factory *tokenstore.Factory
	manager *session.Manager
	closers []func() error
}

// openServices builds the stores and the session manager described by cfg.
// auth may be nil, in which case the manager only serves cached tokens.
func openServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, auth session.Authenticator) (_ *services, err error) {
	svc := &services{}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	svc.cipher, err = secret.NewCipher(cfg.Secrets.EncryptionKey, cfg.Secrets.AppSecret, secret.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating secret cipher: %w", err)
	}
	logger.InfoContext(ctx, "secret cipher ready", slog.String("key_source", string(svc.cipher.KeySource())))

	repo, err := svc.openCredentials(ctx, cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	svc.vault = credstore.NewVault(repo, svc.cipher)

	svc.backend, err = svc.openSharedBackend(ctx, cfg.Shared)
	if err != nil {
		return nil, fmt.Errorf("opening shared token store: %w", err)
	}

	local := tokenstore.NewLocal(tokencache.New(tokencache.WithExpiryBuffer(cfg.Cache.ExpiryBuffer)))
	shared := tokenstore.NewShared(svc.backend,
		tokenstore.WithService(cfg.Shared.Service),
		tokenstore.WithTTL(cfg.Shared.TTL),
		tokenstore.WithSharedExpiryBuffer(cfg.Cache.ExpiryBuffer),
		tokenstore.WithLogger(logger),
	)
	svc.factory = tokenstore.NewFactory(local, shared)

	svc.manager = session.NewManager(svc.factory, auth,
		session.WithCredentials(svc.vault),
		session.WithLockTimeout(cfg.Cache.LockTimeout),
		session.WithLogger(logger),
	)
	if auth == nil {
		logger.WarnContext(ctx, "no authenticator configured; sign-ins will fail")
	}
	return svc, nil
}

func (s *services) openCredentials(ctx context.Context, cfg config.CredentialsConfig) (credstore.Repository, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return credmemory.NewRepository(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := credbolt.NewRepositoryFromFile(cfg.BoltPath, boltOptions)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, repo.Close)
		return repo, nil
	case config.BackendPostgres:
		repo, err := credpostgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { repo.Close(); return nil })
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported credentials backend %q", cfg.Backend)
	}
}

func (s *services) openSharedBackend(ctx context.Context, cfg config.SharedConfig) (kv.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return kvmemory.New(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		backend, err := kvbolt.NewFromFile(cfg.BoltPath, boltOptions)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, backend.Close)
		return backend, nil
	case config.BackendPostgres:
		backend, err := kvpostgres.NewFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { backend.Close(); return nil })
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported shared backend %q", cfg.Backend)
	}
}

// Close releases storage handles in reverse order of opening.
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
