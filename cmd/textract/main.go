// Command textract extracts text, tables and metadata from documents.
//
// Modes:
//
//	textract file.pdf [file2.docx ...]   one-shot extraction to stdout
//	textract -serve :8085                REST server
//	textract -mcp                        MCP server on stdio
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/api"
	"github.com/hazyhaar/textract/observability"
	"github.com/hazyhaar/textract/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		serveAddr  = flag.String("serve", "", "run REST server on this address (e.g. :8085)")
		mcpStdio   = flag.Bool("mcp", false, "run MCP server on stdio")
		outJSON    = flag.Bool("json", false, "emit full JSON results instead of plain text")
		metricsDB  = flag.String("metrics-db", "", "SQLite path for request metrics (server modes)")
	)
	flag.Parse()

	logger := newLogger(env("LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	cfg.Logger = logger

	pipe := pipeline.New(cfg, pipeline.WithLogger(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case *serveAddr != "":
		if err := runServer(ctx, pipe, *serveAddr, *metricsDB, logger); err != nil {
			slog.Error("server", "error", err)
			os.Exit(1)
		}
	case *mcpStdio:
		if err := runMCP(ctx, pipe); err != nil && ctx.Err() == nil {
			slog.Error("mcp", "error", err)
			os.Exit(1)
		}
	default:
		if flag.NArg() == 0 {
			flag.Usage()
			os.Exit(2)
		}
		if err := runFiles(ctx, pipe, flag.Args(), *outJSON); err != nil {
			slog.Error("extract", "error", err)
			os.Exit(1)
		}
	}
}

// runFiles extracts each file and prints the result to stdout.
func runFiles(ctx context.Context, pipe *pipeline.Pipeline, paths []string, asJSON bool) error {
	var srcs []*textract.Source
	for _, path := range paths {
		src, err := textract.FromFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		srcs = append(srcs, src)
	}

	items := pipe.ExtractBatch(ctx, srcs, nil)
	var firstErr error
	for i, item := range items {
		if item.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", paths[i], item.Err)
			if firstErr == nil {
				firstErr = item.Err
			}
			continue
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(item.Result); err != nil {
				return err
			}
			continue
		}
		if len(items) > 1 {
			fmt.Printf("=== %s ===\n", paths[i])
		}
		fmt.Println(item.Result.Content)
	}
	return firstErr
}

// runServer starts the REST server and blocks until the context is done.
func runServer(ctx context.Context, pipe *pipeline.Pipeline, addr, metricsPath string, logger *slog.Logger) error {
	opts := []api.Option{api.WithLogger(logger)}

	if metricsPath != "" {
		db, err := sql.Open("sqlite", metricsPath)
		if err != nil {
			return fmt.Errorf("open metrics db: %w", err)
		}
		defer db.Close()
		if err := observability.Init(db); err != nil {
			return fmt.Errorf("init metrics db: %w", err)
		}
		mm := observability.NewMetricsManager(db, 100, 10*time.Second)
		defer mm.Close()
		opts = append(opts, api.WithMetrics(mm))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(pipe, opts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("REST server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runMCP serves the extraction tools over stdio.
func runMCP(ctx context.Context, pipe *pipeline.Pipeline) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "textract",
		Version: "1.0.0",
	}, nil)
	pipe.RegisterMCP(srv)

	slog.Info("MCP server starting", "transport", "stdio")
	return srv.Run(ctx, &mcp.IOTransport{Reader: os.Stdin, Writer: os.Stdout})
}

// loadConfig reads the YAML file at path, or returns defaults when path
// is empty. Keys absent from the file keep their default values.
func loadConfig(path string) (*textract.Config, error) {
	cfg := textract.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
