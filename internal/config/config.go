package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

const (
	BackendPython  = "python"
	BackendOllama  = "ollama"
	BackendOpenAI  = "openai"
	BackendLlamaGo = "llamago"
	BackendLexical = "lexical"
)

const (
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultClusterSeed    = 42
	DefaultSummaryWords   = 40
	MaxTopics             = 5
)

type AppConfig struct {
	Env                Environment
	LogLevel           string
	ServerPort         string
	RawBodyLog         bool
	HttpTimeoutSeconds int
	CORSOrigin         string
}

type PythonConfig struct {
	ConfigDir              string
	ProcessShutdownTimeout int
	ProcessKillTimeout     int
}

type SemanticConfig struct {
	Backend       string
	Model         string
	TimeoutMs     int
	WorkerCount   int
	BatchSize     int
	OllamaURL     string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	MaxTokens     int
	CacheSize     int
	CachePath     string
	LlamaLib      string
	Python        PythonConfig
}

type ClusterConfig struct {
	Seed    uint64
	NInit   int
	MaxIter int
}

type AnalysisConfig struct {
	SummaryWords int
}

type Config struct {
	App      AppConfig
	Semantic SemanticConfig
	Cluster  ClusterConfig
	Analysis AnalysisConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	appEnv := getEnv("APP_ENV", "development")
	env := parseEnvironment(appEnv)

	logLevel := getLogLevel(env)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultPythonDir := filepath.Join(homeDir, ".config", "tably")

	defaultWorkerCount := calculateDefaultWorkerCount()

	seed, err := strconv.ParseUint(getEnv("CLUSTER_SEED", strconv.Itoa(DefaultClusterSeed)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CLUSTER_SEED: %w", err)
	}

	return &Config{
		App: AppConfig{
			Env:                env,
			LogLevel:           logLevel,
			ServerPort:         getEnv("APP_SERVER_PORT", "8000"),
			RawBodyLog:         getEnvBool("APP_RAW_BODY_LOG", false),
			HttpTimeoutSeconds: getEnvInt("APP_HTTP_TIMEOUT_SECONDS", 60),
			CORSOrigin:         getEnv("APP_CORS_ORIGIN", "*"),
		},
		Semantic: SemanticConfig{
			Backend:       strings.ToLower(getEnv("SEMANTIC_BACKEND", BackendPython)),
			Model:         getEnv("SEMANTIC_MODEL_NAME", DefaultEmbeddingModel),
			TimeoutMs:     getEnvInt("SEMANTIC_TIMEOUT_MS", 30000),
			WorkerCount:   getEnvInt("SEMANTIC_WORKER_COUNT", defaultWorkerCount),
			BatchSize:     getEnvInt("SEMANTIC_BATCH_SIZE", 64),
			OllamaURL:     getEnv("SEMANTIC_OLLAMA_URL", "http://localhost:11434"),
			OpenAIBaseURL: getEnv("SEMANTIC_OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			MaxTokens:     getEnvInt("SEMANTIC_MAX_TOKENS", 8191),
			CacheSize:     getEnvInt("SEMANTIC_CACHE_SIZE", 0),
			CachePath:     getEnv("SEMANTIC_CACHE_PATH", ""),
			LlamaLib:      getEnv("SEMANTIC_LLAMA_LIB", ""),
			Python: PythonConfig{
				ConfigDir:              getEnv("SEMANTIC_PYTHON_CONFIG_DIR", defaultPythonDir),
				ProcessShutdownTimeout: getEnvInt("SEMANTIC_PYTHON_PROCESS_SHUTDOWN_TIMEOUT", 5),
				ProcessKillTimeout:     getEnvInt("SEMANTIC_PYTHON_PROCESS_KILL_TIMEOUT", 2),
			},
		},
		Cluster: ClusterConfig{
			Seed:    seed,
			NInit:   getEnvInt("CLUSTER_N_INIT", 0),
			MaxIter: getEnvInt("CLUSTER_MAX_ITER", 300),
		},
		Analysis: AnalysisConfig{
			SummaryWords: getEnvInt("ANALYSIS_SUMMARY_WORDS", DefaultSummaryWords),
		},
	}, nil
}

func (c *Config) Validate() error {
	switch c.Semantic.Backend {
	case BackendPython, BackendOllama, BackendOpenAI, BackendLlamaGo, BackendLexical:
	default:
		return fmt.Errorf("unknown SEMANTIC_BACKEND %q", c.Semantic.Backend)
	}
	if c.Semantic.Backend == BackendOpenAI && c.Semantic.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
	}
	if c.Semantic.Model == "" {
		return fmt.Errorf("SEMANTIC_MODEL_NAME must not be empty")
	}
	if port, err := strconv.Atoi(c.App.ServerPort); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid APP_SERVER_PORT %q", c.App.ServerPort)
	}
	if c.Semantic.WorkerCount < 1 {
		return fmt.Errorf("SEMANTIC_WORKER_COUNT must be at least 1")
	}
	if c.Analysis.SummaryWords < 1 {
		return fmt.Errorf("ANALYSIS_SUMMARY_WORDS must be at least 1")
	}
	if c.Cluster.NInit < 0 || c.Cluster.MaxIter < 1 {
		return fmt.Errorf("CLUSTER_N_INIT must be >= 0 and CLUSTER_MAX_ITER >= 1")
	}
	return nil
}

func parseEnvironment(envStr string) Environment {
	env := Environment(strings.ToLower(envStr))

	switch env {
	case Development, Production:
		return env
	default:
		return Development
	}
}

func calculateDefaultWorkerCount() int {
	cpuCores := runtime.NumCPU()

	// all-MiniLM-L6-v2 needs ~90MB per process, 200MB leaves room for torch
	modelMemoryMB := 200

	var availableMemoryMB int64 = 4096

	if memInfo, err := os.ReadFile("/proc/meminfo"); err == nil {
		lines := strings.Split(string(memInfo), "\n")
		for _, line := range lines {
			if strings.HasPrefix(line, "MemTotal:") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
						availableMemoryMB = kb / 1024
						break
					}
				}
			}
		}
	}

	workersByCPU := min(cpuCores, 4)

	// leave 2GB for system and Go process
	systemReservedMB := 2048
	usableMemoryMB := int(availableMemoryMB) - systemReservedMB
	if usableMemoryMB < 0 {
		usableMemoryMB = 2048
	}

	workersByMemory := max(min(usableMemoryMB/modelMemoryMB, 4), 1)

	return min(max(min(workersByMemory, workersByCPU), 1), 4)
}

func getLogLevel(env Environment) string {
	if env == Production {
		return getEnv("APP_LOG_LEVEL", "info")
	}

	return getEnv("APP_LOG_LEVEL", "debug")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
