package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/originseal/provenance/pkg/infrastructure/config"
	"github.com/originseal/provenance/pkg/infrastructure/logging"
	"github.com/originseal/provenance/pkg/ingest"
	provenanceerrors "github.com/originseal/provenance/pkg/provenance/errors"
	"github.com/originseal/provenance/pkg/provenance/repository"
	"github.com/originseal/provenance/pkg/verify"
)

// exitKind maps a Kind-tagged error to a distinct process exit code so
// scripts can branch on invalid input vs. an internal failure without
// parsing stderr.
func exitKind(err error) int {
	var kerr *provenanceerrors.Error
	for e := err; e != nil; {
		if k, ok := e.(*provenanceerrors.Error); ok {
			kerr = k
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if kerr == nil {
		return 1
	}
	switch kerr.Kind {
	case provenanceerrors.InvalidInput:
		return 2
	case provenanceerrors.NotFound:
		return 3
	default:
		return 1
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "issue":
		runIssue(args)
	case "verify":
		runVerify(args)
	case "migrate":
		runMigrate(args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: originseal-cli <issue|verify|migrate> [flags]")
}

func loadConfigAndLogger(configPath string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	format := logging.TextFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	output := os.Stdout
	logCfg := &logging.Config{Level: level, Format: format, Output: output, EnableSanitizing: true}
	logger := logging.NewLogger(logCfg).WithComponent("originseal-cli")

	return cfg, logger, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*repository.Database, error) {
	db, err := repository.NewDatabase(ctx, &repository.Config{
		ConnectionString: cfg.Database.ConnectionString,
		MaxConnections:   cfg.Database.MaxConnections,
		ConnectTimeout:   time.Duration(cfg.Database.ConnectTimeout) * time.Second,
		MigrationsPath:   cfg.Database.MigrationsPath,
		ScanRecentLimit:  cfg.Search.ScanLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

func runIssue(args []string) {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	configFile := fs.String("config", "", "configuration file path")
	file := fs.String("file", "", "path to the file to ingest")
	userID := fs.String("user", "", "owning user id")
	title := fs.String("title", "", "metadata: title")
	author := fs.String("author", "", "metadata: author")
	organization := fs.String("organization", "", "metadata: organization")
	outPath := fs.String("out", "", "path to write the watermarked output (images only)")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "issue: -file is required")
		os.Exit(1)
	}

	cfg, logger, err := loadConfigAndLogger(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Errorf("opening database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.MigrateToLatest(ctx); err != nil {
		logger.Warnf("migration check: %v", err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Errorf("reading file: %v", err)
		os.Exit(1)
	}

	svc := &ingest.Service{Secret: cfg.Secret.Value, DB: db}
	result, err := svc.Ingest(ctx, ingest.Input{
		UserID:           *userID,
		OriginalFilename: filepath.Base(*file),
		MimeType:         mimeFromExtension(*file),
		Data:             data,
		Metadata: map[string]any{
			"title":        *title,
			"author":       *author,
			"organization": *organization,
		},
	})
	if err != nil {
		logger.Errorf("ingest: %v", err)
		os.Exit(exitKind(err))
	}

	if *outPath != "" && len(result.WatermarkedBytes) > 0 {
		if err := os.WriteFile(*outPath, result.WatermarkedBytes, 0o644); err != nil {
			logger.Errorf("writing watermarked output: %v", err)
			os.Exit(1)
		}
	}

	printJSON(map[string]any{
		"watermark_id":   result.Record.WatermarkID,
		"watermark_code": result.Record.WatermarkCode,
		"issued_at":      result.Record.IssuedAt,
	})
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configFile := fs.String("config", "", "configuration file path")
	file := fs.String("file", "", "path to the file to verify")
	fastPath := fs.Bool("fast", true, "use the fast extraction search grid")
	fs.Parse(args)

	fastSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "fast" {
			fastSet = true
		}
	})

	if *file == "" {
		fmt.Fprintln(os.Stderr, "verify: -file is required")
		os.Exit(1)
	}

	cfg, logger, err := loadConfigAndLogger(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Errorf("opening database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Errorf("reading file: %v", err)
		os.Exit(1)
	}

	fast := cfg.Search.FastPath
	if fastSet {
		fast = *fastPath
	}

	v := &verify.Verifier{
		Secret:      cfg.Secret.Value,
		FastPath:    fast,
		Concurrency: cfg.Search.MaxConcurrentTuple,
		Lookup:      ingest.RepositoryLookup{DB: db},
		Log:         logger,
	}

	doc, img, err := v.Verify(ctx, filepath.Base(*file), mimeFromExtension(*file), data)
	if err != nil {
		logger.Errorf("verify: %v", err)
		os.Exit(1)
	}

	if doc != nil {
		printJSON(doc)
		return
	}
	printJSON(img)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configFile := fs.String("config", "", "configuration file path")
	fs.Parse(args)

	cfg, logger, err := loadConfigAndLogger(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Errorf("opening database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.MigrateToLatest(ctx); err != nil {
		logger.Errorf("migrating: %v", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")
}

func mimeFromExtension(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
