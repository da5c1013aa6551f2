package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/nodeid"
)

func TestFileStore_Materialize(t *testing.T) {
	body := []byte("png-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer server.Close()

	dir := t.TempDir()
	store := NewFileStore(httpclient.NewClient(httpclient.DefaultConfig(), logging.Nop()), dir, "/static/", logging.Nop())

	t.Run("downloads into digest directory", func(t *testing.T) {
		req := models.AssetRequest{URL: server.URL + "/files/logo.png", Filename: "logo.png", Version: "original"}

		handle, err := store.Materialize(context.Background(), req)
		require.NoError(t, err)

		sum := sha256.Sum256(body)
		digest := hex.EncodeToString(sum[:])
		assert.Equal(t, digest, handle.Digest)
		assert.Equal(t, "logo", handle.BaseName)
		assert.Equal(t, "png", handle.Extension)
		assert.Equal(t, int64(len(body)), handle.Size)
		assert.Equal(t, "/static/"+digest+"/logo.png", handle.PublicPath)
		assert.Equal(t, nodeid.For(models.TypeFile, req.URL), handle.ID)
		assert.Equal(t, nodeid.For(models.TypeFile, "logo.png-original"), handle.ParentID)

		data, err := os.ReadFile(filepath.Join(dir, digest, "logo.png"))
		require.NoError(t, err)
		assert.Equal(t, body, data)
	})

	t.Run("filename falls back to url path", func(t *testing.T) {
		handle, err := store.Materialize(context.Background(), models.AssetRequest{URL: server.URL + "/a/b/photo.jpg"})
		require.NoError(t, err)
		assert.Equal(t, "photo", handle.BaseName)
	})

	t.Run("root path url gets a default filename", func(t *testing.T) {
		for _, req := range []models.AssetRequest{
			{URL: server.URL + "/", Filename: "/", Version: "v=2"},
			{URL: server.URL + "/?v=2"},
			{URL: server.URL + "/", Filename: "."},
		} {
			handle, err := store.Materialize(context.Background(), req)
			require.NoError(t, err, req.URL)
			assert.Equal(t, "file", handle.BaseName)
			assert.Equal(t, filepath.Join(dir, handle.Digest, "file"), handle.LocalPath)
		}
	})

	t.Run("non-2xx is a fetch error", func(t *testing.T) {
		_, err := store.Materialize(context.Background(), models.AssetRequest{URL: server.URL + "/missing.png"})
		assert.ErrorIs(t, err, ErrFetch)

		var statusErr *httpclient.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	})

	t.Run("unreachable host is a fetch error", func(t *testing.T) {
		_, err := store.Materialize(context.Background(), models.AssetRequest{URL: "http://127.0.0.1:1/x.png"})
		assert.ErrorIs(t, err, ErrFetch)
	})
}
