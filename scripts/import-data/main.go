// import-data runs the bulk import pipeline offline, without the HTTP server.
//
// It scans <source-dir>/<namespace>/ for candidate files (JSON record
// collections and markdown documents), validates each one and writes the
// records into the namespace. Per-file failures are reported and never abort
// the rest of the run.
//
// Usage: go run ./scripts/import-data [flags] <namespace>
//
// Database connection: configured via config.yaml / PG* environment variables
//
// Flags:
//
//	-replace   Replace each endpoint's entry set instead of appending (default: false)
//	-source    Override the configured import source directory
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/audit"
	"github.com/personakit/persona-engine/pkg/config"
	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/repositories"
	"github.com/personakit/persona-engine/pkg/services"
)

func main() {
	replace := flag.Bool("replace", false, "Replace each endpoint's entry set instead of appending")
	source := flag.String("source", "", "Override the configured import source directory")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-replace] [-source dir] <namespace>\n", os.Args[0])
		os.Exit(1)
	}
	namespace := args[0]

	cfg, err := config.Load("dev")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	sourceDir := cfg.Import.SourceDir
	if *source != "" {
		sourceDir = *source
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db)
	if _, err := userRepo.GetByUsername(ctx, namespace); err != nil {
		fmt.Fprintf(os.Stderr, "Unknown namespace %q: %v\n", namespace, err)
		os.Exit(1)
	}

	importService := services.NewImportService(
		repositories.NewEntryRepository(),
		repositories.NewImportRunRepository(db),
		services.NewAuditService(repositories.NewAuditRepository(db), logger),
		audit.NewSecurityAuditor(logger),
		services.NewViewCache(nil, logger),
		sourceDir,
		logger,
	)

	// The CLI acts as the namespace owner; cross-namespace policy is the
	// server's concern, an operator with database access already has the data.
	principal := models.Principal{Username: namespace}

	provider := database.NewNamespaceScopeProvider(db)
	nsCtx, cleanup, err := provider.WithNamespaceScope(ctx, namespace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire namespace scope: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	results, err := importService.ImportAll(nsCtx, principal, namespace, *replace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Printf("No candidate files under %s/%s\n", sourceDir, namespace)
		return
	}

	failed := 0
	for _, result := range results {
		switch result.Status {
		case models.ImportStatusFailed:
			failed++
			fmt.Printf("  %-30s FAILED: %s\n", result.File, result.Error)
		default:
			fmt.Printf("  %-30s %s (%d imported, %d skipped)\n", result.File, result.Status, result.Imported, result.Skipped)
		}
	}
	fmt.Printf("%d files processed, %d failed\n", len(results), failed)

	if failed > 0 {
		os.Exit(1)
	}
}
