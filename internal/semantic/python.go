package semantic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/utils"
)

type Task struct {
	RequestID string
	Texts     []string
	Result    chan<- TaskResult
}

type TaskResult struct {
	Embeddings [][]float64
	Err        error
}

type PythonWorkerPool struct {
	logger    *utils.Logger
	script    string
	venv      string
	cfg       *config.SemanticConfig
	dimension int
	taskQueue chan Task
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// live counts running workers; dead is closed when the last one exits.
	live     atomic.Int32
	dead     chan struct{}
	deadOnce sync.Once
}

type PythonWorker struct {
	id      int
	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	reader  *bufio.Reader
	dim     int
	mu      sync.Mutex
	pool    *PythonWorkerPool
}

type PythonRequest struct {
	Texts []string `json:"texts"`
}

type PythonResponse struct {
	Embeddings [][]float64          `json:"embeddings"`
	Error      string               `json:"error,omitempty"`
	DebugInfo  *PythonResponseDebug `json:"debug_info"`
}

type PythonResponseDebug struct {
	ProcessingTimeMS int `json:"processing_time_ms"`
	BatchSize        int `json:"batch_size"`
}

func NewPythonEmbedder(logger *utils.Logger, cfg *config.SemanticConfig) *PythonWorkerPool {
	pythonDir := filepath.Join(cfg.Python.ConfigDir, "python")
	script := filepath.Join(pythonDir, "embedder.py")
	venv := filepath.Join(cfg.Python.ConfigDir, "venv")

	return &PythonWorkerPool{
		logger:    logger,
		script:    script,
		venv:      venv,
		cfg:       cfg,
		taskQueue: make(chan Task, 100),
		done:      make(chan struct{}),
		dead:      make(chan struct{}),
	}
}

// Initialize prepares the virtualenv and starts every worker. All workers
// must come up, since the reported dimension is taken from their handshake.
func (p *PythonWorkerPool) Initialize() error {
	p.logger.Info(nil, "Initializing Python embedder with %d workers", p.cfg.WorkerCount)

	if p.cfg.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if err := p.setupEnvironment(); err != nil {
		return fmt.Errorf("failed to setup environment: %w", err)
	}

	if err := p.startWorkers(); err != nil {
		return err
	}

	p.logger.Info(nil, "Python embedder initialized successfully (dim=%d)", p.dimension)
	return nil
}

func (p *PythonWorkerPool) startWorkers() error {
	workers := make([]*PythonWorker, 0, p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker, err := p.startWorker(i)
		if err != nil {
			for _, w := range workers {
				w.close()
			}
			return fmt.Errorf("failed to start worker %d: %w", i, err)
		}
		workers = append(workers, worker)
	}
	p.dimension = workers[0].dim

	p.live.Store(int32(len(workers)))
	for _, worker := range workers {
		p.wg.Add(1)
		go p.runWorker(worker)
	}
	return nil
}

func (p *PythonWorkerPool) Name() string   { return config.BackendPython }
func (p *PythonWorkerPool) Model() string  { return p.cfg.Model }
func (p *PythonWorkerPool) Dimension() int { return p.dimension }

func (p *PythonWorkerPool) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	if p.cfg.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	if err := p.unavailable(); err != nil {
		return nil, err
	}

	result := make(chan TaskResult, 1)
	task := Task{RequestID: utils.RequestID(ctx), Texts: texts, Result: result}

	select {
	case p.taskQueue <- task:
	case <-p.done:
		return nil, errPoolClosed
	case <-p.dead:
		return nil, errNoLiveWorkers
	case <-ctx.Done():
		return nil, &BackendError{Backend: config.BackendPython, Err: ctx.Err()}
	}

	select {
	case res := <-result:
		return p.taskResult(texts, res)
	case <-p.done:
		return p.lateResult(texts, result, errPoolClosed)
	case <-p.dead:
		return p.lateResult(texts, result, errNoLiveWorkers)
	case <-ctx.Done():
		return nil, &BackendError{Backend: config.BackendPython, Err: ctx.Err()}
	}
}

var (
	errPoolClosed    = backendErr(config.BackendPython, "worker pool closed")
	errNoLiveWorkers = backendErr(config.BackendPython, "no live workers")
)

func (p *PythonWorkerPool) unavailable() error {
	select {
	case <-p.done:
		return errPoolClosed
	case <-p.dead:
		return errNoLiveWorkers
	default:
	}
	if p.live.Load() == 0 {
		return errNoLiveWorkers
	}
	return nil
}

// lateResult prefers a result that was delivered while the pool went down.
func (p *PythonWorkerPool) lateResult(texts []string, result <-chan TaskResult, err error) ([]Embedding, error) {
	select {
	case res := <-result:
		return p.taskResult(texts, res)
	default:
		return nil, err
	}
}

func (p *PythonWorkerPool) taskResult(texts []string, res TaskResult) ([]Embedding, error) {
	if res.Err != nil {
		return nil, &BackendError{Backend: config.BackendPython, Err: res.Err}
	}
	return finalize(config.BackendPython, texts, res.Embeddings)
}

// workerExited marks the pool dead once no worker is left and fails every
// task still queued.
func (p *PythonWorkerPool) workerExited() {
	if p.live.Add(-1) > 0 {
		return
	}
	p.deadOnce.Do(func() { close(p.dead) })

	for {
		select {
		case task := <-p.taskQueue:
			task.Result <- TaskResult{Err: fmt.Errorf("no live workers")}
		default:
			return
		}
	}
}

func (p *PythonWorkerPool) runWorker(worker *PythonWorker) {
	defer p.wg.Done()
	defer p.workerExited()
	defer func() { worker.close() }()

	for {
		select {
		case <-p.done:
			return
		case task := <-p.taskQueue:
			if err := worker.processTask(task); err != nil {
				task.Result <- TaskResult{Err: err}

				p.logger.Error(&task.RequestID, "Python worker %d failed, restarting: %v", worker.id, err)
				worker.close()

				replacement, err := p.startWorker(worker.id)
				if err != nil {
					p.logger.Error(nil, "Failed to restart worker %d: %v", worker.id, err)
					return
				}
				worker = replacement
			}
		}
	}
}

func (p *PythonWorkerPool) startWorker(id int) (*PythonWorker, error) {
	python := filepath.Join(p.venv, "bin", "python")

	cmd := exec.Command(python, p.script)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	worker := &PythonWorker{
		id:      id,
		process: cmd,
		stdin:   stdin,
		stdout:  stdout,
		reader:  bufio.NewReaderSize(stdout, 1<<20),
		pool:    p,
	}

	workerCfg := map[string]any{
		"model_name":           p.cfg.Model,
		"batch_size":           p.cfg.BatchSize,
		"normalize_embeddings": true,
	}

	configJSON, err := json.Marshal(workerCfg)
	if err != nil {
		worker.close()
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	configJSON = append(configJSON, '\n')
	if _, err := stdin.Write(configJSON); err != nil {
		worker.close()
		return nil, fmt.Errorf("send config: %w", err)
	}

	line, err := worker.reader.ReadBytes('\n')
	if err != nil {
		worker.close()
		return nil, fmt.Errorf("failed to read READY message: %w", err)
	}

	var readyMsg struct {
		Status       string `json:"status"`
		EmbeddingDim int    `json:"embedding_dim"`
	}
	if err := json.Unmarshal(line, &readyMsg); err != nil {
		worker.close()
		return nil, fmt.Errorf("failed to parse ready message: %w", err)
	}

	if readyMsg.Status != "ready" {
		worker.close()
		return nil, fmt.Errorf("unexpected startup status: %s", readyMsg.Status)
	}

	p.logger.Debug(nil, "Python worker %d ready (embedding_dim=%d)", id, readyMsg.EmbeddingDim)
	worker.dim = readyMsg.EmbeddingDim

	return worker, nil
}

func (w *PythonWorker) processTask(task Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	reqJSON, err := json.Marshal(PythonRequest{Texts: task.Texts})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	reqJSON = append(reqJSON, '\n')
	if _, err := w.stdin.Write(reqJSON); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	line, err := w.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read stdout: %w", err)
	}

	var resp PythonResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	// a python-side error leaves the process usable, so the worker stays up
	if resp.Error != "" {
		task.Result <- TaskResult{Err: fmt.Errorf("python error: %s", resp.Error)}
		return nil
	}

	if resp.DebugInfo != nil {
		w.pool.logger.Debug(
			&task.RequestID,
			"Embedder stats: worker=%d, process_ms=%d, batch_size=%d",
			w.id,
			resp.DebugInfo.ProcessingTimeMS,
			resp.DebugInfo.BatchSize,
		)
	}

	task.Result <- TaskResult{Embeddings: resp.Embeddings}
	return nil
}

func (w *PythonWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stdin != nil {
		w.stdin.Close()
		w.stdin = nil
	}
	if w.process != nil && w.process.Process != nil {
		done := make(chan struct{})
		go func() {
			w.process.Wait()
			close(done)
		}()

		timeout := time.Duration(w.pool.cfg.Python.ProcessShutdownTimeout) * time.Second
		select {
		case <-done:
		case <-time.After(timeout):
			w.process.Process.Kill()

			killTimeout := time.Duration(w.pool.cfg.Python.ProcessKillTimeout) * time.Second
			select {
			case <-done:
			case <-time.After(killTimeout):
				w.pool.logger.Error(nil, "Python worker %d did not exit after kill", w.id)
			}
		}
		w.process = nil
	}
}

func (p *PythonWorkerPool) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
	return nil
}

func (p *PythonWorkerPool) HealthCheck(ctx context.Context) error {
	if _, err := p.Embed(ctx, []string{"test document for health check"}); err != nil {
		return fmt.Errorf("health check: worker error: %w", err)
	}
	return nil
}

func (p *PythonWorkerPool) setupEnvironment() error {
	if err := os.MkdirAll(p.cfg.Python.ConfigDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := p.extractScriptIfNeeded(); err != nil {
		return fmt.Errorf("failed to extract script: %w", err)
	}

	if err := p.checkPython(); err != nil {
		return fmt.Errorf("python check failed: %w", err)
	}

	if err := p.createVenv(); err != nil {
		return fmt.Errorf("failed to create venv: %w", err)
	}

	if err := p.installRequirements(); err != nil {
		return fmt.Errorf("failed to install requirements: %w", err)
	}

	return nil
}

func (p *PythonWorkerPool) checkPython() error {
	cmd := exec.Command("python3", "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("python3 not found: %w", err)
	}

	p.logger.Debug(nil, "Python3 found")
	return nil
}

func (p *PythonWorkerPool) createVenv() error {
	venvPython := filepath.Join(p.venv, "bin", "python")

	if _, err := os.Stat(venvPython); err == nil {
		p.logger.Debug(nil, "Virtual environment already exists at %s", p.venv)
		return nil
	}

	p.logger.Info(nil, "Creating virtual environment at %s", p.venv)

	cmd := exec.Command("python3", "-m", "venv", p.venv)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create venv: %s: %w", output, err)
	}

	p.logger.Info(nil, "Virtual environment created successfully")
	return nil
}

func (p *PythonWorkerPool) installRequirements() error {
	venvPip := filepath.Join(p.venv, "bin", "pip")
	marker := filepath.Join(p.venv, ".tably-requirements")

	if installed, err := os.ReadFile(marker); err == nil && string(installed) == p.requirements() {
		p.logger.Debug(nil, "Python requirements already installed")
		return nil
	}

	p.logger.Info(nil, "Installing Python requirements")

	requirementsPath := filepath.Join(filepath.Dir(p.script), "requirements.txt")
	cmd := exec.Command(venvPip, "install", "-r", requirementsPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to install requirements: %s: %w", output, err)
	}

	if err := os.WriteFile(marker, []byte(p.requirements()), 0644); err != nil {
		p.logger.Error(nil, "Failed to write requirements marker: %v", err)
	}

	p.logger.Info(nil, "Python requirements installed successfully")
	return nil
}

func (p *PythonWorkerPool) requirements() string {
	if embeddedRequirements == "" {
		return defaultRequirements
	}
	return embeddedRequirements
}

func (p *PythonWorkerPool) extractScriptIfNeeded() error {
	pythonDir := filepath.Dir(p.script)

	if err := os.MkdirAll(pythonDir, 0755); err != nil {
		return fmt.Errorf("failed to create python directory: %w", err)
	}

	if current, err := os.ReadFile(p.script); err == nil && string(current) == embeddedPythonScript {
		p.logger.Debug(nil, "Python script already exists at %s", p.script)
		return nil
	}

	p.logger.Info(nil, "Extracting embedded Python script to %s", p.script)

	if err := os.WriteFile(p.script, []byte(embeddedPythonScript), 0755); err != nil {
		return fmt.Errorf("failed to write python script: %w", err)
	}

	requirementsPath := filepath.Join(pythonDir, "requirements.txt")
	if err := os.WriteFile(requirementsPath, []byte(p.requirements()), 0644); err != nil {
		return fmt.Errorf("failed to write requirements file: %w", err)
	}

	p.logger.Info(nil, "Python script extracted successfully")
	return nil
}
