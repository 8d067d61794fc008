package files

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T, max int64) (*AvatarStorage, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewAvatarStorage(fs, "/srv/avatars", "/avatars/", max)
	require.NoError(t, err)
	return s, fs
}

func TestStoreAndServe(t *testing.T) {
	s, fs := newStorage(t, 0)
	ref, err := s.Store(context.Background(), ".PNG", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/avatars/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	name := strings.TrimPrefix(ref, "/avatars")
	data, err := afero.ReadFile(fs, "/srv/avatars"+name)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	f, err := s.HTTP().Open(name)
	require.NoError(t, err)
	defer f.Close()
	served, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(served))
}

func TestStoreRejectsUnsupportedType(t *testing.T) {
	s, _ := newStorage(t, 0)
	_, err := s.Store(context.Background(), ".exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestStoreEnforcesSize(t *testing.T) {
	s, fs := newStorage(t, 4)
	_, err := s.Store(context.Background(), ".jpg", bytes.NewReader([]byte("too large")))
	assert.Error(t, err)

	entries, err := afero.ReadDir(fs, "/srv/avatars")
	require.NoError(t, err)
	assert.Empty(t, entries, "partial upload is removed")
}

func TestDelete(t *testing.T) {
	s, fs := newStorage(t, 0)
	ctx := context.Background()
	ref, err := s.Store(ctx, ".gif", strings.NewReader("gif"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ref))
	entries, err := afero.ReadDir(fs, "/srv/avatars")
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, s.Delete(ctx, ref), "already gone")
	assert.NoError(t, s.Delete(ctx, "/avatars/default_avatar.png"))
	assert.NoError(t, s.Delete(ctx, "https://elsewhere/x.png"))
	assert.NoError(t, s.Delete(ctx, "/avatars/../etc/passwd"))
}
