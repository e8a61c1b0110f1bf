// Package repotest holds the behaviour every credstore.Repository must share.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionkeep/credstore"
)

// Run exercises repo, which must start empty.
func Run(t *testing.T, repo credstore.Repository) {
	t.Helper()
	ctx := context.Background()
	updated := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

	pat := credstore.Ref{PrincipalID: 1, ConfigID: 10, Kind: credstore.KindPATSecret}
	pwd := credstore.Ref{PrincipalID: 1, ConfigID: 11, Kind: credstore.KindPassword}
	other := credstore.Ref{PrincipalID: 12, ConfigID: 10, Kind: credstore.KindPATSecret}

	t.Run("PutAndGet", func(t *testing.T) {
		rec := &credstore.Record{ID: "id-1", Ref: pat, Name: "chat-pat", Ciphertext: "v1:abc", UpdatedAt: updated}
		require.NoError(t, repo.Put(ctx, rec))

		got, err := repo.Get(ctx, pat)
		require.NoError(t, err)
		require.Equal(t, "id-1", got.ID)
		require.Equal(t, pat, got.Ref)
		require.Equal(t, "chat-pat", got.Name)
		require.Equal(t, "v1:abc", got.Ciphertext)
		require.True(t, updated.Equal(got.UpdatedAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, credstore.Ref{PrincipalID: 404, ConfigID: 1, Kind: credstore.KindPassword})
		require.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, &credstore.Record{ID: "id-2", Ref: pat, Name: "renamed", Ciphertext: "v1:def", UpdatedAt: updated}))
		got, err := repo.Get(ctx, pat)
		require.NoError(t, err)
		require.Equal(t, "renamed", got.Name)
		require.Equal(t, "v1:def", got.Ciphertext)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, &credstore.Record{ID: "id-3", Ref: pwd, Name: "alice", Ciphertext: "v1:ghi", UpdatedAt: updated}))
		require.NoError(t, repo.Put(ctx, &credstore.Record{ID: "id-4", Ref: other, Ciphertext: "v1:jkl", UpdatedAt: updated}))

		refs, err := repo.List(ctx, 1)
		require.NoError(t, err)
		require.ElementsMatch(t, []credstore.Ref{pat, pwd}, refs)

		refs, err = repo.List(ctx, 999)
		require.NoError(t, err)
		require.Empty(t, refs)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, pwd))
		_, err := repo.Get(ctx, pwd)
		require.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		err := repo.Delete(ctx, pwd)
		require.ErrorIs(t, err, credstore.ErrNotFound)
	})
}
