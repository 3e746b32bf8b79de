package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/ganttguild/internal/config"
	"github.com/kazz187/ganttguild/internal/eventbus"
	"github.com/kazz187/ganttguild/internal/orchestrator"
	"github.com/kazz187/ganttguild/internal/project"
	projectrepo "github.com/kazz187/ganttguild/internal/project/repositoryimpl"
	"github.com/kazz187/ganttguild/internal/pushnotification"
	pushsubrepo "github.com/kazz187/ganttguild/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/ganttguild/internal/schedule"
	schedulerepo "github.com/kazz187/ganttguild/internal/schedule/repositoryimpl"
	taskrepo "github.com/kazz187/ganttguild/internal/task/repositoryimpl"
	"github.com/kazz187/ganttguild/internal/taskserver"
	"github.com/kazz187/ganttguild/pkg/clog"
	"github.com/kazz187/ganttguild/pkg/storage"

	server "github.com/kazz187/ganttguild/internal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewConnectTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	bus := eventbus.New()

	// Setup repositories
	projectRepo := projectrepo.NewYAMLRepository(store)
	taskRepo := taskrepo.NewYAMLRepository(store)
	runRepo := schedulerepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	// Setup scheduling
	schedulerEnv := config.SchedulerEnvFromEnv(env)
	recalc := orchestrator.NewRecalculator(taskRepo, projectRepo, runRepo, bus,
		orchestrator.WithPassTimeout(schedulerEnv.PassTimeout))
	orch := orchestrator.New(bus, recalc, schedulerEnv.RecalcDebounce, schedulerEnv.EventBuffer)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushNotificationServer := pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(bus, projectRepo, pushSender, schedulerEnv.EventBuffer)

	srv := server.NewServer(
		env,
		project.NewServer(projectRepo, bus, taskRepo, runRepo),
		taskserver.NewServer(taskRepo, projectRepo, bus, recalc),
		schedule.NewServer(taskRepo, projectRepo, runRepo, recalc),
		pushNotificationServer,
	)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() { orch.Start(ctx) })
	wg.Go(func() { pushDispatcher.Start(ctx) })

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
	// Let in-flight passes record their runs.
	recalc.Wait()
}
