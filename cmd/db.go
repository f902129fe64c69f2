// Package cmd provides the petshop command-line maintenance commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"petshop/bootstrap"
	"petshop/config"
	"petshop/storage"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags for db commands
var (
	outputJSON bool
	noColor    bool
	quiet      bool
)

const defaultTimeout = 2 * time.Minute

// Backend is the database administration surface the db commands need.
type Backend interface {
	// Database names the database or collection owner being managed.
	Database() string
	Exists(ctx context.Context) (bool, error)
	// Ensure creates the database if needed and returns a store over it.
	Ensure(ctx context.Context) (storage.PetStore, error)
	Drop(ctx context.Context) error
	Close() error
}

// openBackend is replaced in tests.
var openBackend = defaultOpenBackend

func defaultOpenBackend(cfg *config.Config, sugar *zap.SugaredLogger) (Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendCouchDB:
		couch, err := bootstrap.OpenCouchDB(cfg, sugar)
		if err != nil {
			return nil, err
		}
		return &couchBackend{couch: couch, name: cfg.Cloudant.Database}, nil
	case config.BackendMongoDB:
		return &mongoBackend{cfg: cfg, sugar: sugar}, nil
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

type couchBackend struct {
	couch *storage.CouchDB
	name  string
}

func (b *couchBackend) Database() string { return b.name }

func (b *couchBackend) Exists(ctx context.Context) (bool, error) {
	return b.couch.DatabaseExists(ctx)
}

func (b *couchBackend) Ensure(ctx context.Context) (storage.PetStore, error) {
	return b.couch.EnsureDatabase(ctx)
}

func (b *couchBackend) Drop(ctx context.Context) error {
	return b.couch.DeleteDatabase(ctx)
}

func (b *couchBackend) Close() error {
	return b.couch.Close()
}

type mongoBackend struct {
	cfg     *config.Config
	sugar   *zap.SugaredLogger
	mongoDB *storage.MongoDB
}

func (b *mongoBackend) Database() string { return b.cfg.MongoDB.Database }

func (b *mongoBackend) connect(ctx context.Context) (*storage.MongoDB, error) {
	if b.mongoDB != nil {
		return b.mongoDB, nil
	}
	m, err := storage.NewMongoDB(ctx, b.cfg.MongoDB.URI, b.cfg.MongoDB.Database, b.cfg.MongoDB.MaxPoolSize, b.cfg.MongoDB.Timeout, b.sugar)
	if err != nil {
		return nil, err
	}
	b.mongoDB = m
	return m, nil
}

func (b *mongoBackend) Exists(ctx context.Context) (bool, error) {
	m, err := b.connect(ctx)
	if err != nil {
		return false, err
	}
	names, err := m.Client.ListDatabaseNames(ctx, bson.M{"name": b.cfg.MongoDB.Database})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

func (b *mongoBackend) Ensure(ctx context.Context) (storage.PetStore, error) {
	m, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewMongoStore(ctx, m, b.sugar)
}

func (b *mongoBackend) Drop(ctx context.Context) error {
	m, err := b.connect(ctx)
	if err != nil {
		return err
	}
	return m.Database.Drop(ctx)
}

func (b *mongoBackend) Close() error {
	if b.mongoDB == nil {
		return nil
	}
	return b.mongoDB.Client.Disconnect(context.Background())
}

// MemoryBackend manages a process-local store. Useful for dry runs and tests.
type MemoryBackend struct {
	store   *storage.MemoryStore
	created bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{store: storage.NewMemoryStore()}
}

func (b *MemoryBackend) Database() string { return "memory" }

func (b *MemoryBackend) Exists(context.Context) (bool, error) { return b.created, nil }

func (b *MemoryBackend) Ensure(context.Context) (storage.PetStore, error) {
	b.created = true
	return b.store, nil
}

func (b *MemoryBackend) Drop(ctx context.Context) error {
	b.created = false
	return b.store.RemoveAll(ctx)
}

func (b *MemoryBackend) Close() error { return nil }

// NewDBCmd creates the root db command with all subcommands.
func NewDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the pets database",
		Long: `Manage the pets database: create it with its indexes, check its status,
remove every pet, or load pets from a JSON or YAML seed file.

Connection settings come from the same environment and config.yaml as the server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	dbCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	dbCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	dbCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	dbCmd.AddCommand(newInitCmd())
	dbCmd.AddCommand(newStatusCmd())
	dbCmd.AddCommand(newResetCmd())
	dbCmd.AddCommand(newSeedCmd())

	return dbCmd
}

// initBackend loads configuration and opens the configured backend
func initBackend() (Backend, *zap.SugaredLogger, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := "warn"
	if !quiet && !outputJSON {
		level = cfg.Log.Level
	}
	logger, sugar, err := bootstrap.InitLogger(level, cfg.Log.Format)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	backend, err := openBackend(cfg, sugar)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := backend.Close(); err != nil {
			sugar.Warnw("Failed to close database connection", "error", err)
		}
		_ = logger.Sync()
	}
	return backend, sugar, cleanup, nil
}

// withSpinner shows a spinner on w while fn runs, unless output is quiet or JSON
func withSpinner(w io.Writer, suffix string, fn func() error) error {
	if quiet || outputJSON {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	err := fn()
	s.Stop()
	return err
}

func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the pets database and its indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			backend, _, cleanup, err := initBackend()
			if err != nil {
				return err
			}
			defer cleanup()

			err = withSpinner(cmd.ErrOrStderr(), "Connecting to database...", func() error {
				_, ensureErr := backend.Ensure(ctx)
				return ensureErr
			})
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), map[string]interface{}{"database": backend.Database(), "ready": true})
			}
			if !quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Database %s is ready\n", backend.Database())
			}
			return nil
		},
	}
}

// StatusReport is printed by db status
type StatusReport struct {
	Database  string `json:"database"`
	Exists    bool   `json:"exists"`
	Reachable bool   `json:"reachable"`
	Pets      int    `json:"pets"`
	Available int    `json:"available"`
	Error     string `json:"error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the database exists and how many pets it holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			backend, _, cleanup, err := initBackend()
			if err != nil {
				return err
			}
			defer cleanup()

			report := collectStatus(ctx, backend)
			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), report)
			}
			renderStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func collectStatus(ctx context.Context, backend Backend) StatusReport {
	report := StatusReport{Database: backend.Database()}

	exists, err := backend.Exists(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Reachable = true
	report.Exists = exists
	if !exists {
		return report
	}

	store, err := backend.Ensure(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	pets, err := store.All(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Pets = len(pets)
	for _, p := range pets {
		if p.Available {
			report.Available++
		}
	}
	return report
}

func renderStatus(w io.Writer, report StatusReport) {
	headerColor.Fprintf(w, "Database: %s\n", report.Database)
	switch {
	case !report.Reachable:
		errorColor.Fprintf(w, "✗ Unreachable: %s\n", report.Error)
	case !report.Exists:
		warningColor.Fprintln(w, "! Database does not exist (run: petshop db init)")
	case report.Error != "":
		errorColor.Fprintf(w, "✗ Error: %s\n", report.Error)
	default:
		successColor.Fprintln(w, "✓ Reachable")
		infoColor.Fprintf(w, "  Pets:      %d\n", report.Pets)
		infoColor.Fprintf(w, "  Available: %d\n", report.Available)
	}
}

func newResetCmd() *cobra.Command {
	var yes bool
	var drop bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every pet from the database",
		Long:  "Remove every pet from the database. With --drop the database itself is deleted and recreated.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			backend, _, cleanup, err := initBackend()
			if err != nil {
				return err
			}
			defer cleanup()

			err = withSpinner(cmd.ErrOrStderr(), "Resetting database...", func() error {
				if drop {
					if err := backend.Drop(ctx); err != nil {
						return err
					}
					_, err := backend.Ensure(ctx)
					return err
				}
				store, err := backend.Ensure(ctx)
				if err != nil {
					return err
				}
				return store.RemoveAll(ctx)
			})
			if err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), map[string]interface{}{"database": backend.Database(), "reset": true, "dropped": drop})
			}
			if !quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Database %s reset\n", backend.Database())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removing every pet")
	cmd.Flags().BoolVar(&drop, "drop", false, "Delete and recreate the database instead of removing documents")

	return cmd
}
