package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockbook/cmd/stockbook/cli"
	"github.com/odyssey-erp/stockbook/internal/app"
	"github.com/odyssey-erp/stockbook/internal/observability"
	"github.com/odyssey-erp/stockbook/internal/platform/migrate"
	"github.com/odyssey-erp/stockbook/jobs"
)

const usage = `usage: stockbook <command> [flags]

commands:
  serve      run the ops HTTP server (default)
  migrate    apply database migrations
  import     import an opening-stock workbook
  template   write an empty import workbook
  report     print the stock movement report
  check      run the integrity check in process
  jobs       trigger or inspect background jobs
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	code := run(ctx, cmd, args)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cmd string, args []string) int {
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(os.Stdout, usage)
		return 0
	}
	if cmd == "template" {
		fs := flag.NewFlagSet("template", flag.ContinueOnError)
		out := fs.String("out", "stock-import.xlsx", "output path")
		if err := fs.Parse(args); err != nil {
			return 1
		}
		return cli.TemplateCommand(*out, os.Stderr)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		if err := migrate.Up(ctx, cfg.PGDSN, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			return 1
		}
		return 0
	case "import":
		return runImport(ctx, cfg, logger, args)
	case "report":
		return runReport(ctx, cfg, logger, args)
	case "check":
		return runCheck(ctx, cfg, logger, args)
	case "jobs":
		return runJobs(ctx, cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 1
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	metrics := observability.NewMetrics()
	rt, err := app.NewRuntime(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Metrics:    metrics,
		Health:     rt.Healthy,
		Integrity:  rt.Coordinator,
		JobHandler: jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func runImport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	var opts cli.ImportOptions
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.Int64Var(&opts.TenantID, "tenant", 0, "tenant id")
	fs.Int64Var(&opts.UserID, "user", 0, "acting user id")
	fs.Int64Var(&opts.VendorID, "vendor", 0, "vendor receiving the opening stock")
	fs.StringVar(&opts.Path, "file", "", "workbook path")
	fs.StringVar(&opts.IdempotencyKey, "key", "", "idempotency key")
	fs.StringVar(&opts.Date, "date", "", "purchase date (YYYY-MM-DD)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rt, err := app.NewRuntime(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()
	return cli.ImportCommand(ctx, rt.Coordinator, opts)
}

func runReport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	var opts cli.ReportOptions
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.Int64Var(&opts.TenantID, "tenant", 0, "tenant id")
	fs.StringVar(&opts.From, "from", time.Now().UTC().Format("2006-01-02"), "first day (YYYY-MM-DD)")
	fs.StringVar(&opts.To, "to", "", "last day (YYYY-MM-DD), defaults to --from")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	fs.StringVar(&opts.XLSXPath, "xlsx", "", "write the report to this workbook")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rt, err := app.NewRuntime(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()
	return cli.ReportCommand(ctx, rt.Reports, opts)
}

func runCheck(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	var opts cli.CheckOptions
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.Int64Var(&opts.TenantID, "tenant", 0, "tenant id, 0 for every tenant")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rt, err := app.NewRuntime(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()
	job := jobs.NewIntegrityJob(rt.Coordinator, rt.Tenants, logger, nil)
	return cli.CheckCommand(ctx, job, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	tenant := fs.Int64("tenant", 0, "tenant id for integrity:check, 0 for every tenant")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	jc := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = jc.Close() }()

	switch fs.Arg(0) {
	case "trigger":
		name := fs.Arg(1)
		if name == "" {
			name = jobs.TaskIntegrityCheck
		}
		info, err := jc.Enqueue(ctx, name, *tenant)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s as %s on %s\n", name, info.ID, info.Queue)
	case "stats", "":
		stats, err := jc.Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown action %q (trigger|stats)\n", fs.Arg(0))
		return 1
	}
	return 0
}
