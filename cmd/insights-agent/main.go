package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/healthequitylab/insights-agent/pkg/pipeline"
	"github.com/healthequitylab/insights-agent/pkg/search"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	providerAnthropic = "anthropic"
	providerGemini    = "gemini"

	defaultAnthropicModel = string(anthropic.ModelClaudeSonnet4_5_20250929)
	defaultGeminiModel    = "gemini-2.5-flash"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	report, err := readReport(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	llm, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	searcher, err := search.NewGoogleClient(&search.GoogleConfig{
		Logger:   log,
		APIKey:   cfg.SearchAPIKey,
		EngineID: cfg.SearchEngineID,
	})
	if err != nil {
		return fmt.Errorf("failed to create search client: %w", err)
	}

	p, err := pipeline.New(&pipeline.Config{
		Logger:    log,
		LLM:       llm,
		Searcher:  searcher,
		Prompts:   mustPrompts(),
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	result, err := p.Run(ctx, report)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	return printResult(result, cfg.FullOutput)
}

func mustPrompts() *pipeline.Prompts {
	// Prompts are embedded; a load failure is a build defect, not a
	// runtime condition.
	p, err := pipeline.LoadPrompts()
	if err != nil {
		panic(err)
	}
	return p
}

func newLLMClient(ctx context.Context, cfg Config) (pipeline.LLMClient, error) {
	switch cfg.Provider {
	case providerAnthropic:
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", cfg.Provider)
		}
		return pipeline.NewAnthropicLLMClient(anthropic.Model(cfg.Model), cfg.MaxTokens), nil
	case providerGemini:
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for provider %q", cfg.Provider)
		}
		return pipeline.NewGeminiLLMClient(ctx, apiKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown provider %q (expected %s or %s)", cfg.Provider, providerAnthropic, providerGemini)
	}
}

func readReport(cfg Config) (string, error) {
	if cfg.InputFile != "" {
		data, err := os.ReadFile(cfg.InputFile)
		if err != nil {
			return "", fmt.Errorf("failed to read report file: %w", err)
		}
		return string(data), nil
	}

	if len(cfg.Args) > 0 {
		return strings.Join(cfg.Args, " "), nil
	}

	// Fall back to stdin so reports can be piped in
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read report from stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no report provided (pass it as an argument, --file, or stdin)")
	}
	return string(data), nil
}

func printResult(result *pipeline.Result, full bool) error {
	if full {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if result.Answer != "" {
		fmt.Println(result.Answer)
		return nil
	}

	out, err := json.MarshalIndent(result.Insight, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal insight: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	FullOutput  bool

	Provider  string
	Model     string
	MaxTokens int64
	InputFile string

	SearchAPIKey   string
	SearchEngineID string

	Args []string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (Config, error) {
	var cfg Config
	var maxTokens int

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.FullOutput, "json", false, "emit the full run result including the intermediate analysis and findings")

	flag.StringVar(&cfg.Provider, "provider", getenv("LLM_PROVIDER", providerAnthropic), "LLM provider: anthropic or gemini (env: LLM_PROVIDER)")
	flag.StringVar(&cfg.Model, "model", getenv("LLM_MODEL", ""), "model name (env: LLM_MODEL; default depends on provider)")
	flag.IntVar(&maxTokens, "max-tokens", 4096, "max tokens per LLM call")
	flag.StringVar(&cfg.InputFile, "file", "", "read the report from a file instead of arguments or stdin")

	flag.StringVar(&cfg.SearchAPIKey, "search-api-key", getenv("SEARCH_API_KEY", ""), "Google Programmable Search API key (env: SEARCH_API_KEY)")
	flag.StringVar(&cfg.SearchEngineID, "search-engine-id", getenv("SEARCH_ENGINE_ID", ""), "Google Programmable Search engine ID (env: SEARCH_ENGINE_ID)")

	flag.Parse()
	cfg.Args = flag.Args()
	cfg.MaxTokens = int64(maxTokens)

	if cfg.ShowVersion {
		return cfg, nil
	}

	if cfg.Model == "" {
		switch cfg.Provider {
		case providerGemini:
			cfg.Model = defaultGeminiModel
		default:
			cfg.Model = defaultAnthropicModel
		}
	}

	if cfg.SearchAPIKey == "" {
		return Config{}, fmt.Errorf("search API key is empty (set SEARCH_API_KEY or --search-api-key)")
	}
	if cfg.SearchEngineID == "" {
		return Config{}, fmt.Errorf("search engine ID is empty (set SEARCH_ENGINE_ID or --search-engine-id)")
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
