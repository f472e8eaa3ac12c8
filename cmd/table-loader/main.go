// Package main provides the entry point for the table-loader command.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/txn2/table-loader/pkg/catalog"
	"github.com/txn2/table-loader/pkg/catalog/postgres"
	"github.com/txn2/table-loader/pkg/config"
	"github.com/txn2/table-loader/pkg/database/migrate"
	"github.com/txn2/table-loader/pkg/loader"
	"github.com/txn2/table-loader/pkg/registry"
	"github.com/txn2/table-loader/pkg/resultcache"
)

// version is set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	printTables bool
	refresh     bool
	show        bool
	maxRows     int
	transport   string
	address     string
	showVersion bool

	// set records which flags were given explicitly.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	opts := options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("table-loader", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.BoolVar(&opts.printTables, "print-tables", false, "Print every table in the source and exit")
	fs.BoolVar(&opts.refresh, "refresh", false, "Clear the result cache before loading (overrides config)")
	fs.BoolVar(&opts.show, "show", false, "Render loaded rows as tables")
	fs.IntVar(&opts.maxRows, "max-rows", 0, "Maximum rows rendered per table with -show, or returned per table by MCP tools")
	fs.StringVar(&opts.transport, "transport", "", "Transport type: none, stdio, http (overrides config)")
	fs.StringVar(&opts.address, "address", "", "Listen address for the http transport (overrides config)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parsing flags: %w", err)
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if opts.showVersion {
		_, _ = fmt.Fprintf(stdout, "table-loader version %s\n", version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	cat, err := registry.NewBuiltinRegistry().Open(ctx, cfg.Connection)
	if err != nil {
		return err
	}
	defer func() {
		if err := cat.Close(); err != nil {
			slog.Warn("closing catalog", "error", err)
		}
	}()

	if err := seed(cfg, cat); err != nil {
		return err
	}

	cache := resultcache.New()

	switch cfg.Server.Transport {
	case config.TransportStdio, config.TransportHTTP:
		return serve(ctx, cfg, cat, cache)
	default:
		return load(ctx, cfg, opts, cat, cache, stdout, stderr)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	if opts.configPath == "" {
		return nil, &catalog.ConfigurationError{Reason: "-config is required"}
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	applyOverrides(cfg, opts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, opts options) {
	if opts.set["refresh"] {
		cfg.Refresh = opts.refresh
	}
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if opts.maxRows > 0 {
		cfg.Toolkit.DefaultMaxRows = opts.maxRows
	}
}

// seed applies configured migrations to a postgres source through the
// catalog's pool.
func seed(cfg *config.Config, cat catalog.Catalog) error {
	if cfg.Seed.MigrationsDir == "" {
		return nil
	}

	pg, ok := cat.(*postgres.Catalog)
	if !ok {
		return &catalog.ConfigurationError{Reason: "seed.migrations_dir requires a postgres catalog"}
	}

	if err := migrate.SeedDir(pg.DB(), cfg.Seed.MigrationsDir); err != nil {
		return fmt.Errorf("seeding source: %w", err)
	}
	return nil
}

func load(ctx context.Context, cfg *config.Config, opts options, cat catalog.Catalog, cache *resultcache.Cache, stdout, stderr io.Writer) error {
	l, err := loader.New(ctx, cat, cache, cfg.LoaderConfig())
	if err != nil {
		return fmt.Errorf("creating loader: %w", err)
	}

	if opts.printTables {
		return l.PrintAllTables(ctx, stdout)
	}

	results, err := l.ReadData(ctx)
	for _, d := range l.Diagnostics() {
		_, _ = fmt.Fprintf(stderr, "warning: %s\n", d.Message())
	}
	if err != nil {
		return fmt.Errorf("reading tables: %w", err)
	}

	if opts.show {
		return renderResults(stdout, l.Tables(), results, opts.maxRows)
	}
	return printSummary(stdout, l.Tables(), results)
}

// printSummary writes one "name: N rows" line per loaded table in load
// order.
func printSummary(w io.Writer, tables []string, results map[string]*catalog.Result) error {
	for _, name := range tables {
		result, ok := results[name]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s: %d rows\n", name, result.Len()); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}
	return nil
}
