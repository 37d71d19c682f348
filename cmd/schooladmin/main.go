package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kibuli/schooladmin/internal/app"
	"github.com/kibuli/schooladmin/internal/config"
	"github.com/kibuli/schooladmin/internal/db"
	"github.com/kibuli/schooladmin/internal/engine"
	"github.com/kibuli/schooladmin/internal/jobs"
	"github.com/kibuli/schooladmin/internal/logging"
	"github.com/kibuli/schooladmin/internal/notify"
	"github.com/kibuli/schooladmin/internal/observability"
)

var release = "dev" // set via -ldflags at build time

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer lg.Closer()

	closeSentry, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, release)
	if err != nil {
		lg.Sugar.Warnw("sentry init failed", "err", err)
	}
	defer closeSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		lg.Sugar.Fatalw("db open", "err", err)
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(ctx, database); err != nil {
		lg.Sugar.Fatalw("migrate", "err", err)
	}
	if err := db.Seed(ctx, database); err != nil {
		lg.Sugar.Fatalw("seed", "err", err)
	}

	marks := &db.MarkStore{DB: database}
	assignments := &db.AssignmentStore{DB: database}
	formulas := &db.FormulaStore{DB: database}
	results := &db.ResultStore{DB: database}
	roster := &db.RosterStore{DB: database}

	dispatcher := notify.NewDispatcher(64, lg.Base, &notify.LogConsumer{Log: lg.Base})
	defer dispatcher.Close()

	classifier := engine.NewClassifier(engine.DefaultGradeScale, lg.Base)
	aggregator := engine.NewAggregator(marks, classifier)
	composer := engine.NewComposer(roster, aggregator, formulas, results, dispatcher, lg.Base)

	runner := jobs.New(ctx)
	termEnd := &jobs.TermEnd{
		Roster:   roster,
		Composer: composer,
		Workers:  cfg.BatchWorkers,
		Log:      lg.Base,
	}
	runner.Every(cfg.TermEndEvery, "term_end_results", termEnd.Run)

	app.StartHTTP(ctx, cfg.HTTPAddr, app.Deps{
		DB:          database,
		Marks:       marks,
		Assignments: assignments,
		Formulas:    formulas,
		Results:     results,
		Roster:      roster,
		Composer:    composer,
		Log:         lg.Base,
	})
	lg.Sugar.Infow("schooladmin started", "addr", cfg.HTTPAddr, "env", cfg.Env)

	<-ctx.Done()
	lg.Sugar.Infow("shutting down")
}
