// Package main is the semcache CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/semcache/internal/cli"
	"github.com/hyperjump/semcache/internal/config"
	"github.com/hyperjump/semcache/internal/embedding"
	"github.com/hyperjump/semcache/internal/llm"
	"github.com/hyperjump/semcache/internal/models"
	"github.com/hyperjump/semcache/internal/search"
	"github.com/hyperjump/semcache/internal/semcache"
	"github.com/hyperjump/semcache/internal/server"
	"github.com/hyperjump/semcache/internal/storage"
	"github.com/hyperjump/semcache/internal/vector"
	"github.com/hyperjump/semcache/internal/watcher"
	"github.com/hyperjump/semcache/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/semcache/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and a config.yaml exists in
// the current directory, that file is used instead so that running from a project dir
// picks up the project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newLogger builds the logger for cfg; the --debug flag forces debug level.
func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	if debug || cfg.Debug {
		return utils.NewLogger(true)
	}
	return utils.NewLoggerWithLevel(cfg.LogLevel)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "query":
		runQuery()
	case "repl":
		runREPLCommand()
	case "clear":
		runClear()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("semcache version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg, *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("partition", cfg.Cache.Partition()),
		zap.String("store", cfg.Store.Type),
	)

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Warm the index so the first request does not pay for the rebuild.
	if n, err := components.Engine.Rebuild(ctx); err != nil {
		logger.Warn("initial rebuild failed; will retry on first request", zap.Error(err))
	} else {
		logger.Info("cache loaded", zap.Int("records", n))
	}

	orch := components.Orchestrator
	watchSvc := watcher.NewWatcher(
		[]string{resolvedConfigPath},
		func(path string) {
			if err := reloadPolicy(path, orch); err != nil {
				logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	}

	srv := server.NewServer(components.Engine, orch, components.Store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	watchSvc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// reloadPolicy re-reads the config at path and applies its threshold and top_k.
func reloadPolicy(path string, orch *search.Orchestrator) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return orch.SetPolicy(policyFromConfig(cfg))
}

func policyFromConfig(cfg *config.Config) search.Policy {
	return search.Policy{Threshold: cfg.Cache.Threshold, TopK: cfg.Cache.TopK}
}

// buildPrompt joins all positional args with spaces so multi-word prompts
// work the same with or without shell quoting.
func buildPrompt(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags that appear after the prompt to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the cache in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: semcache query [flags] <prompt>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	prompt := buildPrompt(fs.Args())
	if prompt == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var result *models.QueryResult
	if *serverURL != "" {
		result, err = queryViaHTTP(*serverURL, prompt)
	} else {
		result, err = withComponents(*configPath, func(ctx context.Context, c *Components) (*models.QueryResult, error) {
			return c.Orchestrator.Query(ctx, prompt)
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteQueryResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runREPLCommand() {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	fresh := fs.Bool("fresh", false, "clear the cache partition before starting")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_, err = withComponents(*configPath, func(ctx context.Context, c *Components) (*models.QueryResult, error) {
		if *fresh {
			if err := c.Engine.Clear(ctx); err != nil {
				return nil, fmt.Errorf("clear cache: %w", err)
			}
		}
		return nil, runREPL(ctx, os.Stdin, os.Stdout, c.Orchestrator, format)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "REPL failed: %v\n", err)
		os.Exit(1)
	}
}

// runREPL answers one prompt per input line until EOF or "exit". Query errors are
// printed and the loop continues.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, orch *search.Orchestrator, format cli.OutputFormat) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "exit", "quit":
			return nil
		default:
			result, err := orch.Query(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else if err := cli.WriteQueryResult(out, result, format); err != nil {
				return err
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = clear the store directly)")
	_ = fs.Parse(os.Args[2:])

	var err error
	if *serverURL != "" {
		err = doJSON(http.MethodDelete, *serverURL+"/api/v1/cache", nil, nil)
	} else {
		_, err = withComponents(*configPath, func(ctx context.Context, c *Components) (*models.QueryResult, error) {
			return nil, c.Engine.Clear(ctx)
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Cache cleared")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status models.StatusReport
	if *serverURL != "" {
		err = doJSON(http.MethodGet, *serverURL+"/api/v1/status", nil, &status)
	} else {
		var cfg *config.Config
		cfg, _, err = loadConfig(*configPath)
		if err == nil {
			_, err = withComponents(*configPath, func(ctx context.Context, c *Components) (*models.QueryResult, error) {
				if _, err := c.Engine.Rebuild(ctx); err != nil {
					return nil, err
				}
				srv := server.NewServer(c.Engine, c.Orchestrator, c.Store, cfg, nil)
				status = *srv.Status(ctx)
				return nil, nil
			})
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// withComponents loads config, wires the cache in-process and runs fn against it.
func withComponents(configPath string, fn func(ctx context.Context, c *Components) (*models.QueryResult, error)) (*models.QueryResult, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return fn(ctx, components)
}

func queryViaHTTP(serverURL, prompt string) (*models.QueryResult, error) {
	var result models.QueryResult
	if err := doJSON(http.MethodPost, serverURL+"/api/v1/query", models.QueryRequest{Prompt: prompt}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON sends body as JSON and decodes a 2xx response into out when out is non-nil.
func doJSON(method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Store        storage.RecordStore
	Engine       *semcache.Engine
	Embedder     embedding.Embedder
	Completer    llm.Completer
	Orchestrator *search.Orchestrator
}

func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewRecordStore(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}
	c.Store = store

	opts := vector.HNSWOptions{M: cfg.Index.M, EfConstruction: cfg.Index.EfConstruction, EfSearch: cfg.Index.EfSearch}
	index, err := vector.NewIndex(cfg.Index.Type, opts)
	if err != nil {
		// FAISS is only available in builds with -tags=faiss.
		if cfg.Index.Type != string(vector.IndexTypeHNSW) && cfg.Index.Type != "" {
			logger.Warn("failed to create vector index, falling back to hnsw",
				zap.String("requested_type", cfg.Index.Type),
				zap.Error(err))
			index = vector.NewHNSWIndex(opts)
		} else {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	logger.Info("vector index initialized",
		zap.String("type", index.Type()),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	engine, err := semcache.NewEngine(store, index, semcache.Config{
		Partition:       cfg.Cache.Partition(),
		Dimensions:      cfg.Embedding.Dimensions,
		TTL:             cfg.Cache.TTL(),
		InitialCapacity: cfg.Index.InitialCapacity,
		GrowthStep:      cfg.Index.GrowthStep,
	}, logger)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	c.Engine = engine

	embedder, err := embedding.NewEmbedder(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	completer, err := llm.NewCompleter(&cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completer: %w", err)
	}
	c.Completer = completer

	orch, err := search.NewOrchestrator(engine, embedder, completer, policyFromConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	c.Orchestrator = orch
	ok = true
	return c, nil
}

func printUsage() {
	fmt.Println(`semcache - Semantic response cache for LLM prompts

Usage:
  semcache server [flags]            Start the HTTP server
  semcache query [flags] <prompt>    Answer a prompt through the cache
  semcache repl [flags]              Interactive prompt loop (in-process cache)
  semcache clear [flags]             Delete every cached record in the partition
  semcache status [flags]            Show engine/store/policy status
  semcache version                   Show version
  semcache help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/semcache/config.yaml)
  --debug            Enable debug logging

Query Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run the cache in-process.
  --output string    Output format: text or json (default: text)

REPL Flags:
  --config string    Config file path
  --fresh            Clear the partition before the first prompt
  --output string    Output format: text or json (default: text)

Clear/Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct store access.
  --output string    Output format for status: text or json (default: text)

Examples:
  semcache server
  semcache query "What is the capital of France?"
  semcache query --output json capital of france
  semcache repl --fresh
  semcache status --output json
  semcache clear`)
}
