package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	server "github.com/agentgate/agentgate/internal"
	"github.com/agentgate/agentgate/internal/channel"
	channelrepo "github.com/agentgate/agentgate/internal/channel/repositoryimpl"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/eventbus"
	"github.com/agentgate/agentgate/internal/executor"
	"github.com/agentgate/agentgate/internal/identity"
	identityrepo "github.com/agentgate/agentgate/internal/identity/repositoryimpl"
	jobrepo "github.com/agentgate/agentgate/internal/job/repositoryimpl"
	"github.com/agentgate/agentgate/internal/orchestrator"
	"github.com/agentgate/agentgate/internal/permission"
	permissionrepo "github.com/agentgate/agentgate/internal/permission/repositoryimpl"
	"github.com/agentgate/agentgate/internal/pushnotification"
	pushsubrepo "github.com/agentgate/agentgate/internal/pushsubscription/repositoryimpl"
	"github.com/agentgate/agentgate/pkg/clog"
	"github.com/agentgate/agentgate/pkg/panicerr"
	"github.com/agentgate/agentgate/pkg/storage"
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
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	var localStore *storage.LocalStorage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		localStore, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
		store = localStore
	}

	// Setup event bus
	bus := eventbus.New()

	// Setup repositories
	permissionRepo := permissionrepo.NewYAMLRepository(store)
	channelRepo := channelrepo.NewYAMLRepository(store)
	identityRepo := identityrepo.NewYAMLRepository(store)
	jobRepo := jobrepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	// Setup permission resolution
	resolver := permission.NewResolver(permissionRepo, channelRepo, identityRepo)
	engine := permission.NewEngine(resolver)

	// Setup execution backends
	retryPolicy := executor.PolicyFromEnv(&env.ExecutorEnv)
	sandbox := executor.NewRetrier(executor.NewSandbox(&env.SandboxEnv, env.ExecutorEnv.StepTimeout), retryPolicy)
	process := executor.NewRetrier(executor.NewProcess("", env.ExecutorEnv.StepTimeout), retryPolicy)

	// Setup orchestrator
	orch := orchestrator.New(jobRepo, resolver, engine, sandbox, process, bus, env.ApprovalEnv.TTL)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushNotificationServer := pushnotification.NewServer(vapidEnv, pushSubRepo)
	pushDispatcher := pushnotification.NewDispatcher(bus, jobRepo, resolver, pushSender)

	srv := server.NewServer(
		env,
		orchestrator.NewServer(orch),
		permission.NewServer(permissionRepo, identityRepo, bus),
		identity.NewServer(identityRepo),
		channel.NewServer(channelRepo),
		pushNotificationServer,
	)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go func() {
		if err := panicerr.SafeContext(pushDispatcher.Start)(ctx); err != nil {
			slog.Error("push notification dispatcher stopped", "error", err)
		}
	}()

	// Hot reload of permission sets edited on disk (local storage only).
	if localStore != nil {
		dir := filepath.Join(localStore.BasePath(), permissionrepo.Prefix)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create permission set directory", "error", err)
			os.Exit(1)
		}
		watcher := permission.NewWatcher(dir, bus)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("permission watcher stopped", "error", err)
			}
		}()
	}

	// Approval expiry sweep, only when a TTL is configured.
	if env.ApprovalEnv.TTL > 0 {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := orch.ExpireStale(ctx); err != nil {
						slog.Error("approval expiry sweep failed", "error", err)
					}
				}
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after request contexts cancel.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	orch.Shutdown()
}
