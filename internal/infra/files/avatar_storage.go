// Package files stores uploaded avatars on an afero filesystem.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var ErrUnsupportedType = errors.New("unsupported image type")

var allowedExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// AvatarStorage writes files under dir and hands out refs under urlPrefix.
type AvatarStorage struct {
	fs        afero.Fs
	dir       string
	urlPrefix string
	maxBytes  int64
}

var _ core.FileStorage = (*AvatarStorage)(nil)

func NewAvatarStorage(fsys afero.Fs, dir, urlPrefix string, maxBytes int64) (*AvatarStorage, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("avatar dir: %w", err)
	}
	return &AvatarStorage{
		fs:        fsys,
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxBytes:  maxBytes,
	}, nil
}

func (s *AvatarStorage) Store(_ context.Context, ext string, r io.Reader) (string, error) {
	ext = strings.ToLower(ext)
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	name := uuid.NewString() + ext
	full := path.Join(s.dir, name)

	f, err := s.fs.Create(full)
	if err != nil {
		return "", fmt.Errorf("create avatar: %w", err)
	}
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = fmt.Errorf("avatar larger than %d bytes", s.maxBytes)
	}
	if err != nil {
		_ = s.fs.Remove(full)
		return "", fmt.Errorf("write avatar: %w", err)
	}
	log.Info().Str("module", "infra.files").Str("file", name).Int64("bytes", n).Msg("avatar stored")
	return s.urlPrefix + "/" + name, nil
}

// Delete removes the file behind ref. Refs outside urlPrefix are ignored.
func (s *AvatarStorage) Delete(_ context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, s.urlPrefix+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return nil
	}
	if err := s.fs.Remove(path.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete avatar: %w", err)
	}
	return nil
}

// HTTP exposes the avatar directory for static serving.
func (s *AvatarStorage) HTTP() http.FileSystem {
	return afero.NewHttpFs(afero.NewBasePathFs(s.fs, s.dir))
}
