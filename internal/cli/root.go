// Package cli implements the calc command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/cache"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/persistence"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
	"github.com/ilramdhan/doorcalc/internal/modules/catalog"
	"github.com/ilramdhan/doorcalc/pkg/database"
	"github.com/ilramdhan/doorcalc/pkg/formula"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

// App holds the state shared across commands.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Out       io.Writer
	Err       io.Writer
	JSON      bool
	Strict    bool
	Functions formula.Library

	closers []func()
}

// NewRootCmd builds the calc command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	var withCatalog bool

	root := &cobra.Command{
		Use:   "calc",
		Short: "Evaluate door pricing formulas and calculator definitions",
		Long: `calc evaluates formula expressions and runs calculator definitions
from YAML files. With --catalog, getPrice, getProperty and the other catalog
functions read from the product database configured by DB_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !withCatalog {
				return nil
			}
			return app.connectCatalog(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	root.PersistentFlags().BoolVar(&app.JSON, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&app.Strict, "strict", app.Strict, "Reject values for unknown variables")
	root.PersistentFlags().BoolVar(&withCatalog, "catalog", false, "Connect catalog functions to the product database")

	root.AddCommand(NewEvalCmd(app), NewRunCmd(app), NewDepsCmd(app))
	return root
}

// Execute runs the calc command with configuration from the environment.
func Execute(ctx context.Context) error {
	cfg := config.Load()
	app := &App{
		Config: cfg,
		Logger: logger.New(logger.Options{Level: cfg.Log.Level, Format: "text", Output: os.Stderr}),
		Out:    os.Stdout,
		Err:    os.Stderr,
		Strict: cfg.Calculator.StrictVariables,
	}
	defer app.Close()
	return NewRootCmd(app).ExecuteContext(ctx)
}

// Close releases the catalog connection, if any.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) connectCatalog(ctx context.Context) error {
	pool, err := database.NewPool(ctx, &a.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect catalog: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	c, err := cache.New(ctx, cache.Options{
		Backend:       a.Config.Catalog.CacheBackend,
		RedisAddr:     a.Config.Catalog.RedisAddr,
		RedisPassword: a.Config.Catalog.RedisPassword,
		RedisDB:       a.Config.Catalog.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog cache: %w", err)
	}
	if closer, ok := c.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = closer.Close() })
	}

	source := catalog.NewDataSource(
		persistence.NewCatalogRepository(pool),
		catalog.WithCache(c),
		catalog.WithTTL(a.Config.Catalog.CacheTTL),
		catalog.WithDefaultLimit(a.Config.Catalog.DefaultLimit),
		catalog.WithLogger(a.Logger),
	)
	a.Functions = source.Functions()
	return nil
}

func (a *App) engineOptions() []calculator.Option {
	opts := []calculator.Option{
		calculator.WithLogger(a.logger()),
	}
	if a.Config != nil {
		opts = append(opts, calculator.WithWorkers(a.Config.Calculator.Workers))
	}
	if a.Strict {
		opts = append(opts, calculator.WithStrictVariables())
	}
	if a.Functions != nil {
		opts = append(opts, calculator.WithFunctions(a.Functions))
	}
	return opts
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return logger.Discard()
	}
	return a.Logger
}

func (a *App) timeout() time.Duration {
	if a.Config == nil {
		return 0
	}
	return a.Config.Calculator.Timeout
}

// parseAssignments turns k=v pairs into values. Each value is read as a YAML
// scalar, so 800 is a number, true a boolean and DOOR-OAK-001 a string.
func parseAssignments(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected name=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		values[key] = formula.Normalize(value)
	}
	return values, nil
}

func sortedNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
