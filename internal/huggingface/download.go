// Package huggingface fetches GGUF model files from the Hugging Face hub into
// a local cache.
package huggingface

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultEndpoint = "https://huggingface.co"
	DefaultRevision = "main"
)

type Resolver struct {
	Endpoint   string
	Revision   string
	CacheDir   string
	HTTPClient *http.Client
}

// NewResolver returns a resolver caching into TABLY_MODEL_CACHE, or
// $XDG_CACHE_HOME/tably/models.
func NewResolver() (*Resolver, error) {
	dir, err := ModelCacheDir()
	if err != nil {
		return nil, err
	}
	return &Resolver{
		Endpoint:   DefaultEndpoint,
		Revision:   DefaultRevision,
		CacheDir:   dir,
		HTTPClient: http.DefaultClient,
	}, nil
}

func ModelCacheDir() (string, error) {
	if d := os.Getenv("TABLY_MODEL_CACHE"); d != "" {
		return d, nil
	}
	cache := os.Getenv("XDG_CACHE_HOME")
	if cache == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cache = filepath.Join(home, ".cache")
	}
	return filepath.Join(cache, "tably", "models"), nil
}

func (r *Resolver) URL(repo, file string) string {
	revision := r.Revision
	if revision == "" {
		revision = DefaultRevision
	}
	repo = strings.TrimPrefix(repo, DefaultEndpoint+"/")
	return fmt.Sprintf("%s/%s/resolve/%s/%s", strings.TrimRight(r.Endpoint, "/"), repo, revision, file)
}

func (r *Resolver) LocalPath(repo, file string) string {
	return filepath.Join(r.CacheDir, strings.ReplaceAll(repo, "/", "_"), file)
}

// Resolve maps a model ref to a local GGUF path, downloading it on first use.
// Accepted forms are "repo:file.gguf", "org/repo/file.gguf" and a plain local
// path, which is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	repo, file, remote := ParseModelRef(ref)
	if !remote {
		return strings.TrimSpace(ref), nil
	}

	dest := r.LocalPath(repo, file)
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		return dest, nil
	}

	url := r.URL(repo, file)
	if err := r.download(ctx, url, dest); err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	return dest, nil
}

func ParseModelRef(ref string) (repo, file string, remote bool) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "hf:")
	if ref == "" || filepath.IsAbs(ref) || strings.HasPrefix(ref, ".") {
		return "", "", false
	}

	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		repo, file = ref[:idx], ref[idx+1:]
		if repo != "" && strings.HasSuffix(file, ".gguf") {
			return repo, file, true
		}
		return "", "", false
	}

	if strings.HasSuffix(ref, ".gguf") && strings.Count(ref, "/") >= 2 {
		last := strings.LastIndex(ref, "/")
		return ref[:last], ref[last+1:], true
	}

	return "", "", false
}

// download streams url into a temp file beside destPath and renames it into
// place, so an interrupted download never leaves a truncated model behind.
func (r *Resolver) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "tably/1.0")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), destPath)
}
