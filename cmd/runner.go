package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/auth"
	"github.com/desertthunder/songcrate/internal/repositories"
	"github.com/desertthunder/songcrate/internal/retry"
	"github.com/desertthunder/songcrate/internal/server"
	"github.com/desertthunder/songcrate/internal/services"
	"github.com/desertthunder/songcrate/internal/shared"
	"github.com/desertthunder/songcrate/internal/tasks"
	"github.com/urfave/cli/v3"
)

// defaultOwner is the owner used by CLI commands when --owner is not given.
const defaultOwner = "local"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies past the config are built lazily, because the config path is a per-command flag.
type Runner struct {
	config      *shared.Config
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	db          *sql.DB
	ownsDB      bool
	catalog     *repositories.CatalogRepository
	credentials *repositories.CredentialRepository
	spotify     *services.SpotifyClient
	handshake   *auth.Handshake
	importer    *tasks.Importer
	metrics     *server.Metrics
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		metrics:    server.NewMetrics(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, keygenCommand, serveCommand, authCommand, importCommand, importsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the --config file once. A missing file falls back to defaults plus environment overrides.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
		r.config = shared.DefaultConfig()
		r.config.ApplyEnv(os.LookupEnv)
	}

	shared.SetLogLevelName(r.logger, r.config.Log.Level)
	return r.config, nil
}

// openDatabase opens the configured database and brings its schema up to date.
func (r *Runner) openDatabase() (*sql.DB, error) {
	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db = db
		r.ownsDB = true
	}

	applied, err := shared.RunMigrations(r.db)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		r.logger.Info("applied migrations", "count", applied)
	}
	return r.db, nil
}

// build wires config, storage, the Spotify client, the handshake and the importer.
func (r *Runner) build(cmd *cli.Command) error {
	if r.importer != nil {
		return nil
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	key, err := auth.DecodeKey(config.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("%w (generate one with 'songcrate keygen')", err)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	r.catalog = repositories.NewCatalogRepository(db)
	r.credentials = repositories.NewCredentialRepository(db)

	r.spotify, err = services.NewSpotifyClient(services.SpotifyOpts{
		Config:     config.Credentials.Spotify,
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}

	r.handshake, err = auth.NewHandshake(auth.HandshakeOpts{
		Provider: r.spotify,
		Store:    r.credentials,
		Key:      key,
		Logger:   r.logger,
	})
	if err != nil {
		return err
	}

	r.importer, err = r.newImporter(r.logger)
	return err
}

// newImporter builds an importer over the runner's store and client that logs to logger.
func (r *Runner) newImporter(logger *log.Logger) (*tasks.Importer, error) {
	return tasks.NewImporter(tasks.ImporterOpts{
		Store:      r.catalog,
		Fetcher:    r.spotify,
		Tokens:     r.handshake,
		Retrier:    retry.New(retry.PolicyFrom(r.config.Retry), logger),
		Logger:     logger,
		OnComplete: r.metrics.ObserveImport,
	})
}

func (r *Runner) close() {
	if r.db != nil && r.ownsDB {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain("\n"+format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// ownerFlag resolves --owner, defaulting to [defaultOwner].
func ownerFlag(cmd *cli.Command) string {
	if owner := cmd.String("owner"); owner != "" {
		return owner
	}
	return defaultOwner
}

// withDeps runs action after [Runner.build] and closes the database afterwards.
func (r *Runner) withDeps(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.build(cmd); err != nil {
			return err
		}
		defer r.close()
		return action(ctx, cmd)
	}
}
