package huggingface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		ref    string
		repo   string
		file   string
		remote bool
	}{
		{ref: "org/model-GGUF:model-Q8_0.gguf", repo: "org/model-GGUF", file: "model-Q8_0.gguf", remote: true},
		{ref: "hf:org/model-GGUF:model.gguf", repo: "org/model-GGUF", file: "model.gguf", remote: true},
		{ref: "org/model-GGUF/model.gguf", repo: "org/model-GGUF", file: "model.gguf", remote: true},
		{ref: "/models/model.gguf"},
		{ref: "./model.gguf"},
		{ref: "org/repo:README.md"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			repo, file, remote := ParseModelRef(tt.ref)
			assert.Equal(t, tt.remote, remote)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.file, file)
		})
	}
}

func TestResolveDownloadsOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/org/repo/resolve/main/model.gguf", r.URL.Path)
		w.Write([]byte("GGUF"))
	}))
	defer srv.Close()

	r := &Resolver{Endpoint: srv.URL, CacheDir: t.TempDir(), HTTPClient: srv.Client()}

	path, err := r.Resolve(context.Background(), "org/repo:model.gguf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.CacheDir, "org_repo", "model.gguf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GGUF", string(data))

	_, err = r.Resolve(context.Background(), "org/repo:model.gguf")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestResolveFailedDownloadLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	r := &Resolver{Endpoint: srv.URL, CacheDir: t.TempDir(), HTTPClient: srv.Client()}

	_, err := r.Resolve(context.Background(), "org/repo:model.gguf")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(r.CacheDir, "org_repo"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolveLocalPath(t *testing.T) {
	r := &Resolver{Endpoint: "http://unused", CacheDir: t.TempDir()}

	path, err := r.Resolve(context.Background(), " /models/local.gguf ")
	require.NoError(t, err)
	assert.Equal(t, "/models/local.gguf", path)
}

func TestModelCacheDir(t *testing.T) {
	t.Setenv("TABLY_MODEL_CACHE", "/tmp/models")
	dir, err := ModelCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/models", dir)

	t.Setenv("TABLY_MODEL_CACHE", "")
	t.Setenv("XDG_CACHE_HOME", "/tmp/cache")
	dir, err = ModelCacheDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/cache", "tably", "models"), dir)
}
