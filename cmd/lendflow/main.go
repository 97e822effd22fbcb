package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rendis/lendflow/internal/api"
	"github.com/rendis/lendflow/internal/app"
	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/pkg/mcp"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "lendflow:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "lendflow",
		Usage:                 "Workflow automation for commercial lending pipelines",
		Version:               version,
		EnableShellCompletion: true,
		Flags:                 configFlags(),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, the sweeper and the trigger scheduler",
				Action: runServe,
			},
			{
				Name:   "sweep",
				Usage:  "Run one sweep of due scheduled actions and print the summary",
				Action: runSweep,
			},
			{
				Name:   "migrate",
				Usage:  "Create or upgrade the database schema",
				Action: runMigrate,
			},
			{
				Name:  "workflows",
				Usage: "Manage workflow definitions",
				Commands: []*cli.Command{
					{
						Name:  "import",
						Usage: "Import workflow definitions from a YAML file",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "YAML file with a workflows list", Required: true},
							&cli.BoolFlag{Name: "replace", Usage: "overwrite workflows whose id already exists"},
						},
						Action: runImport,
					},
				},
			},
			{
				Name:  "secrets",
				Usage: "Manage credentials referenced as ${{secrets.NAME}} in webhook configs",
				Commands: []*cli.Command{
					{
						Name:      "set",
						Usage:     "Store a credential; the value is read from --value or stdin",
						ArgsUsage: "NAME",
						Flags:     []cli.Flag{&cli.StringFlag{Name: "value"}},
						Action:    runSecretSet,
					},
					{Name: "list", Usage: "List credential names", Action: runSecretList},
					{Name: "delete", Usage: "Delete a credential", ArgsUsage: "NAME", Action: runSecretDelete},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: runMCP,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintln(cmd.Root().Writer, version)
					return err
				},
			},
		},
	}
}

// openApp resolves configuration and wires the engine. Logs go to stderr so
// the mcp command keeps stdout for its transport.
func openApp(ctx context.Context, cmd *cli.Command) (*app.App, Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	logger := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	appCfg := cfg.appConfig()
	appCfg.Logger = logger
	a, err := app.New(ctx, appCfg)
	if err != nil {
		return nil, cfg, err
	}
	return a, cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cfg, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Scheduler.RecoverMissed(ctx); err != nil {
		a.Logger.Error("failed to recover missed schedules", slog.String("error", err.Error()))
	}
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.Scheduler.Stop() }()

	handler := api.NewServer(api.Deps{
		Store:   a.Store,
		Catalog: a.Catalog,
		Ledger:  a.Ledger,
		Runner:  a.Executor,
		Sweeper: a.Sweeper,
		Hub:     a.Hub,
		Logger:  a.Logger,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.Logger.Info("lendflow listening", slog.String("addr", cfg.ListenAddr), slog.String("version", version))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runSweep(ctx context.Context, cmd *cli.Command) error {
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, summary)
}

func runMigrate(ctx context.Context, cmd *cli.Command) error {
	a, cfg, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Logger.Info("database ready", slog.String("db", cfg.dbURI()))
	return nil
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	data, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return err
	}
	items, err := parseWorkflowFile(data)
	if err != nil {
		return err
	}

	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := importWorkflows(ctx, a.Catalog, a.Validator.Schema(), items, cmd.Bool("replace"), a.Logger)
	for _, id := range ids {
		fmt.Fprintln(cmd.Root().Writer, id)
	}
	return err
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcp.NewServer(mcp.ServerDeps{
		Store:   a.Store,
		Catalog: a.Catalog,
		Ledger:  a.Ledger,
		Runner:  a.Executor,
		Sweeper: a.Sweeper,
		Hub:     a.Hub,
		Logger:  a.Logger,
	})
	return srv.Serve(ctx)
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
