package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/cache"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/definitions"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/persistence"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/quotesheet"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
	"github.com/ilramdhan/doorcalc/internal/modules/catalog"
	"github.com/ilramdhan/doorcalc/pkg/database"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

var (
	calculatorID = flag.String("calculator", "", "Calculator definition id")
	inputPath    = flag.String("in", "", "Input .xlsx: variable ids in the first row, one calculation per row")
	outputPath   = flag.String("out", "results.xlsx", "Output .xlsx")
	useCatalog   = flag.Bool("catalog", true, "Resolve catalog functions against the product database")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if *calculatorID == "" || *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Graceful shutdown: unfinished rows are reported as interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := definitions.NewStore(cfg.Calculator.DefinitionsDir)
	if err != nil {
		fatal("failed to load calculator definitions", err)
	}
	def, _ := store.GetByID(ctx, *calculatorID)
	if def == nil {
		log.Error("calculator not found", slog.String("id", *calculatorID), slog.String("dir", cfg.Calculator.DefinitionsDir))
		os.Exit(1)
	}

	in, err := os.Open(*inputPath)
	if err != nil {
		fatal("failed to open input", err)
	}
	rows, err := quotesheet.ReadInputs(in)
	in.Close()
	if err != nil {
		fatal("failed to read input", err)
	}

	opts := []calculator.Option{
		calculator.WithLogger(log),
		calculator.WithWorkers(cfg.Calculator.Workers),
	}
	if cfg.Calculator.StrictVariables {
		opts = append(opts, calculator.WithStrictVariables())
	}
	if *useCatalog {
		pool, err := database.NewPool(ctx, &cfg.Database)
		if err != nil {
			fatal("failed to connect to database", err)
		}
		defer pool.Close()

		// One process, one run: the memory cache is enough to share lookups between rows
		source := catalog.NewDataSource(
			persistence.NewCatalogRepository(pool),
			catalog.WithCache(cache.NewMemory()),
			catalog.WithTTL(cfg.Catalog.CacheTTL),
			catalog.WithDefaultLimit(cfg.Catalog.DefaultLimit),
			catalog.WithLogger(log),
		)
		opts = append(opts, calculator.WithFunctions(source.Functions()))
	}

	log.Info("starting batch",
		slog.String("calculator", def.ID),
		slog.Int("rows", len(rows)),
		slog.Int("workers", cfg.Calculator.BatchWorkers))

	batch := calculator.NewBatchCalculator(def, cfg.Calculator.BatchWorkers, cfg.Calculator.Timeout, opts...).
		WithBatchLogger(log)
	report, runErr := batch.Run(ctx, rows)
	if runErr != nil {
		log.Warn("batch interrupted", slog.Any("error", runErr))
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		fatal("failed to create output", err)
	}
	if err := quotesheet.WriteResults(out, def, report); err != nil {
		out.Close()
		fatal("failed to write results", err)
	}
	if err := out.Close(); err != nil {
		fatal("failed to write results", err)
	}

	log.Info("batch written",
		slog.String("run_id", report.RunID.String()),
		slog.String("path", *outputPath),
		slog.Int64("processed", report.Processed),
		slog.Int64("failed", report.Failed))
	if runErr != nil || report.Failed > 0 {
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
