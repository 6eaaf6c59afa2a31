package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/berfenger/haier2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRemove(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	s, err := Open(MEMORY_PATH)
	require.NoError(err)
	defer s.Close()

	ctx := context.Background()
	token := domain.AccountToken{Token: "t1", RefreshToken: "r1", ExpiresAt: 1700000000}
	require.NoError(s.Save(ctx, "account", token))

	var loaded domain.AccountToken
	found, err := s.Load(ctx, "account", &loaded)
	require.NoError(err)
	assert.True(found)
	assert.Equal(token, loaded)

	// overwrite
	token.Token = "t2"
	require.NoError(s.Save(ctx, "account", token))
	_, err = s.Load(ctx, "account", &loaded)
	require.NoError(err)
	assert.Equal("t2", loaded.Token)

	require.NoError(s.Remove(ctx, "account"))
	found, err = s.Load(ctx, "account", &loaded)
	require.NoError(err)
	assert.False(found)
}

func TestKeysByPrefix(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	s, err := Open(MEMORY_PATH)
	require.NoError(err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(s.Save(ctx, "device:B", map[string]string{"id": "B"}))
	require.NoError(s.Save(ctx, "device:A", map[string]string{"id": "A"}))
	require.NoError(s.Save(ctx, "device_filter", map[string]string{}))
	require.NoError(s.Save(ctx, "account", map[string]string{}))

	keys, err := s.Keys(ctx, "device:")
	require.NoError(err)
	assert.Equal([]string{"device:A", "device:B"}, keys)

	keys, err = s.Keys(ctx, "missing")
	require.NoError(err)
	assert.Empty(keys)
}

func TestFileStorePersists(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "nested", "haier.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(err)
	require.NoError(s.Save(ctx, "k", []string{"a", "b"}))
	require.NoError(s.Close())

	s, err = Open(path)
	require.NoError(err)
	defer s.Close()

	var out []string
	found, err := s.Load(ctx, "k", &out)
	require.NoError(err)
	assert.True(found)
	assert.Equal([]string{"a", "b"}, out)
}
