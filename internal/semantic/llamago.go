//go:build llamago

package semantic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/huggingface"
	"github.com/wgomg/tably/internal/utils"
)

// maxSampleDims bounds the buffer used to learn the model's dimension.
const maxSampleDims = 4096

// LlamaGoEmbedder runs a GGUF model in-process through the llama_go shared
// library, loaded with purego so no cgo toolchain is needed.
type LlamaGoEmbedder struct {
	logger     *utils.Logger
	mu         sync.Mutex
	model      string
	modelPtr   unsafe.Pointer
	nDims      int
	freeFn     func(model unsafe.Pointer)
	embedFn    func(model unsafe.Pointer, text *byte, embedding *float32, maxDims int) int
	getErrorFn func() string
}

func llamaLibCandidates(configured string) []string {
	candidates := []string{
		"libllama_go.so",
		"libllama_go.dylib",
		"llama_go.dll",
		"/usr/local/lib/libllama_go.so",
		"/usr/lib/libllama_go.so",
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "libllama_go.so"),
			filepath.Join(dir, "libllama_go.dylib"),
		)
	}
	if configured != "" {
		candidates = append([]string{configured}, candidates...)
	}
	return candidates
}

func findLlamaLib(configured string) string {
	for _, cand := range llamaLibCandidates(configured) {
		if _, err := os.Stat(cand); err == nil {
			return cand
		}
	}
	return ""
}

func newLlamaGoEmbedder(ctx context.Context, logger *utils.Logger, cfg *config.SemanticConfig) (Embedder, error) {
	libPath := findLlamaLib(cfg.LlamaLib)
	if libPath == "" {
		return nil, fmt.Errorf("llama_go shared library not found (set SEMANTIC_LLAMA_LIB)")
	}

	lib, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", libPath, err)
	}

	var loadFn func(path *byte, nCtx, nGpuLayers int) unsafe.Pointer
	e := &LlamaGoEmbedder{
		logger: logger,
		model:  modelFor(config.BackendLlamaGo, cfg.Model),
	}

	purego.RegisterLibFunc(&loadFn, lib, "llama_go_load")
	purego.RegisterLibFunc(&e.freeFn, lib, "llama_go_free")
	purego.RegisterLibFunc(&e.embedFn, lib, "llama_go_embed")
	purego.RegisterLibFunc(&e.getErrorFn, lib, "llama_go_get_error")

	resolver, err := huggingface.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("model cache: %w", err)
	}

	path, err := resolver.Resolve(ctx, e.model)
	if err != nil {
		return nil, fmt.Errorf("resolve GGUF model: %w", err)
	}

	if fi, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", path, err)
	} else if fi.Size() == 0 {
		return nil, fmt.Errorf("model file is empty: %s", path)
	}

	logger.Info(nil, "Loading GGUF model %s with %s", path, libPath)

	e.modelPtr = loadFn(cString(path), 2048, 0)
	if e.modelPtr == nil {
		return nil, e.lastError("load model")
	}

	var sample [maxSampleDims]float32
	nDims := e.embedFn(e.modelPtr, cString("dimension check"), &sample[0], len(sample))
	if nDims <= 0 {
		e.freeFn(e.modelPtr)
		return nil, e.lastError("detect embedding dims")
	}
	e.nDims = nDims

	logger.Info(nil, "llama_go embedder ready (dim=%d)", nDims)
	return e, nil
}

func cString(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

func (e *LlamaGoEmbedder) lastError(op string) error {
	if msg := e.getErrorFn(); msg != "" {
		return fmt.Errorf("%s: %s", op, msg)
	}
	return fmt.Errorf("%s failed", op)
}

func (e *LlamaGoEmbedder) Name() string   { return config.BackendLlamaGo }
func (e *LlamaGoEmbedder) Model() string  { return e.model }
func (e *LlamaGoEmbedder) Dimension() int { return e.nDims }

// Embed runs texts one at a time; the library keeps a single context per model.
func (e *LlamaGoEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.modelPtr == nil {
		return nil, backendErr(config.BackendLlamaGo, "model closed")
	}

	raw := make([][]float64, len(texts))
	buf := make([]float32, e.nDims)
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, &BackendError{Backend: config.BackendLlamaGo, Err: err}
		}

		n := e.embedFn(e.modelPtr, cString(text), &buf[0], len(buf))
		if n <= 0 {
			return nil, &BackendError{Backend: config.BackendLlamaGo, Err: e.lastError("embed")}
		}
		raw[i] = float32sToFloat64s(buf[:n])
	}

	return finalize(config.BackendLlamaGo, texts, raw)
}

func (e *LlamaGoEmbedder) HealthCheck(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.modelPtr == nil {
		return fmt.Errorf("model closed")
	}
	return nil
}

func (e *LlamaGoEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.modelPtr != nil {
		e.freeFn(e.modelPtr)
		e.modelPtr = nil
	}
	return nil
}
