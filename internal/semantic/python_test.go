package semantic

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/utils"
)

// fakeWorker speaks the worker line protocol: a config line, a ready reply,
// then one reply per request. It refuses to start while bin/dead exists.
const fakeWorker = `#!/bin/sh
[ -e "$(dirname "$0")/dead" ] && exit 1
read -r config
echo '{"status":"ready","embedding_dim":2}'
while read -r line; do
  case "$line" in
    *boom*) echo '{"embeddings":[],"error":"model exploded"}' ;;
    *crash*) exit 1 ;;
    *slow*) sleep 1; echo '{"embeddings":[[1,0]]}' ;;
    *) echo '{"embeddings":[[3,4]],"debug_info":{"processing_time_ms":1,"batch_size":1}}' ;;
  esac
done
`

func newFakePool(t *testing.T, workers, timeoutMs int) (*PythonWorkerPool, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake worker needs /bin/sh")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "venv", "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "python"), []byte(fakeWorker), 0755))

	cfg := &config.SemanticConfig{
		Backend:     config.BackendPython,
		Model:       "test-model",
		TimeoutMs:   timeoutMs,
		WorkerCount: workers,
		BatchSize:   8,
		Python: config.PythonConfig{
			ConfigDir:              dir,
			ProcessShutdownTimeout: 1,
			ProcessKillTimeout:     1,
		},
	}
	return NewPythonEmbedder(utils.NewDiscardLogger(), cfg), bin
}

func startFakePool(t *testing.T, workers, timeoutMs int) (*PythonWorkerPool, string) {
	t.Helper()

	p, bin := newFakePool(t, workers, timeoutMs)
	require.NoError(t, p.startWorkers())
	t.Cleanup(func() { p.Close() })
	return p, bin
}

func embedWithin(t *testing.T, p *PythonWorkerPool, text string) ([]Embedding, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := p.Embed(ctx, []string{text})
	require.NotErrorIs(t, err, context.DeadlineExceeded, "embed blocked instead of failing")
	return out, err
}

func TestPythonPoolEmbedsAndNormalizes(t *testing.T) {
	p, _ := startFakePool(t, 2, 0)
	assert.Equal(t, 2, p.Dimension())
	assert.Equal(t, config.BackendPython, p.Name())

	out, err := embedWithin(t, p, "hello")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.6, out[0][0], 1e-9)
	assert.InDelta(t, 0.8, out[0][1], 1e-9)

	require.NoError(t, p.HealthCheck(context.Background()))
}

func TestPythonPoolErrorReplyKeepsWorker(t *testing.T) {
	p, _ := startFakePool(t, 1, 0)

	_, err := embedWithin(t, p, "boom")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "model exploded")

	_, err = embedWithin(t, p, "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.live.Load())
}

func TestPythonPoolRestartsCrashedWorker(t *testing.T) {
	p, _ := startFakePool(t, 1, 0)

	_, err := embedWithin(t, p, "crash")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	out, err := embedWithin(t, p, "hello")
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestPythonPoolTimeout(t *testing.T) {
	p, _ := startFakePool(t, 1, 100)

	start := time.Now()
	_, err := p.Embed(context.Background(), []string{"slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPythonPoolFailsFastWhenAllWorkersDie(t *testing.T) {
	p, bin := startFakePool(t, 1, 0)
	require.NoError(t, os.WriteFile(filepath.Join(bin, "dead"), nil, 0644))

	_, err := embedWithin(t, p, "crash")
	require.Error(t, err)

	require.Eventually(t, func() bool { return p.live.Load() == 0 }, 5*time.Second, 10*time.Millisecond)

	for i := 0; i < 20; i++ {
		_, err := embedWithin(t, p, "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
		assert.Contains(t, err.Error(), "no live workers")
	}
}

func TestPythonPoolFailsFastAfterClose(t *testing.T) {
	p, _ := startFakePool(t, 1, 0)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	for i := 0; i < 20; i++ {
		_, err := embedWithin(t, p, "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	}
}

func TestPythonPoolNeverStarted(t *testing.T) {
	p, _ := newFakePool(t, 1, 0)

	_, err := embedWithin(t, p, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no live workers")

	require.NoError(t, p.Close())
	_, err = embedWithin(t, p, "hello")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestPythonPoolStartupFailure(t *testing.T) {
	p, bin := newFakePool(t, 2, 0)
	require.NoError(t, os.WriteFile(filepath.Join(bin, "dead"), nil, 0644))

	err := p.startWorkers()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start worker 0")
	assert.Equal(t, int32(0), p.live.Load())
}
