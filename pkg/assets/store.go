package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/nodeid"
)

// FileStore downloads assets into a local directory laid out as
// <dir>/<sha256>/<filename>.
type FileStore struct {
	client     *httpclient.Client
	dir        string
	publicPath string
	logger     ectologger.Logger
}

// NewFileStore creates a FileStore writing under dir. publicPath is the URL
// prefix the directory is served from.
func NewFileStore(client *httpclient.Client, dir, publicPath string, logger ectologger.Logger) *FileStore {
	return &FileStore{
		client:     client,
		dir:        dir,
		publicPath: strings.TrimSuffix(publicPath, "/"),
		logger:     logger,
	}
}

// Materialize downloads req.URL. Transport and status failures wrap ErrFetch.
func (s *FileStore) Materialize(ctx context.Context, req models.AssetRequest) (*models.AssetHandle, error) {
	source := req.URL
	if strings.HasPrefix(source, "//") {
		source = "https:" + source
	}

	filename := safeFilename(req.Filename)
	if filename == "" {
		filename = filenameFromURL(source)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	size, err := s.client.Download(ctx, source, io.MultiWriter(tmp, hash))
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		return nil, fmt.Errorf("failed to write %s: %w", tmp.Name(), closeErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, req.URL, err)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	targetDir := filepath.Join(s.dir, digest)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset dir: %w", err)
	}
	target := filepath.Join(targetDir, filename)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, fmt.Errorf("failed to move asset into place: %w", err)
	}

	ext := filepath.Ext(filename)
	return &models.AssetHandle{
		ID:         nodeid.For(models.TypeFile, req.URL),
		ParentID:   nodeid.For(models.TypeFile, req.ParentKey()),
		URL:        req.URL,
		Digest:     digest,
		BaseName:   strings.TrimSuffix(filename, ext),
		Extension:  strings.TrimPrefix(ext, "."),
		Size:       size,
		LocalPath:  target,
		PublicPath: s.publicPath + "/" + digest + "/" + url.PathEscape(filename),
	}, nil
}

func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "file"
	}
	if name := safeFilename(path.Base(u.Path)); name != "" {
		return name
	}
	return "file"
}

// safeFilename returns the base name of name, or "" when that is not a
// usable file name inside an asset directory.
func safeFilename(name string) string {
	name = filepath.Base(name)
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	if name == string(filepath.Separator) {
		return ""
	}
	return name
}
