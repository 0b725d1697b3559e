// Command sandgraphd runs the workspace synchronization daemon: the
// websocket endpoint for change notifications and the worker draining
// the durable work queues.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sandgraph/sandgraph/internal/memgraph"
	"github.com/sandgraph/sandgraph/pkg/access"
	"github.com/sandgraph/sandgraph/pkg/config"
	"github.com/sandgraph/sandgraph/pkg/diff"
	"github.com/sandgraph/sandgraph/pkg/formula"
	"github.com/sandgraph/sandgraph/pkg/lock"
	"github.com/sandgraph/sandgraph/pkg/logger"
	"github.com/sandgraph/sandgraph/pkg/models"
	"github.com/sandgraph/sandgraph/pkg/realtime"
	"github.com/sandgraph/sandgraph/pkg/workqueue"
	"github.com/sandgraph/sandgraph/pkg/workspace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "sandgraphd",
		Short:        "workspace synchronization daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := logger.New().WithLevel(cfg.Log.Level).ToPath(cfg.Log.Path).Make()
	if err != nil {
		return err
	}

	g := memgraph.New()
	authRepo := memgraph.NewAuthRepository()
	cache := access.NewCache(cfg.Cache.TTL)
	locks := lock.NewLocalRepository()
	differ := diff.NewEngine(g, formula.PropertyTitleEvaluator{PropertyName: models.PropertyTitle}, logger.Component(log, "diff"))

	queue, err := workqueue.OpenSQLiteQueue(cfg.Queue.Store)
	if err != nil {
		return err
	}
	names := workqueue.ResolveNames(cfg.Queue.Prefix)
	hub := realtime.NewHub(logger.Component(log, "realtime"))
	bus := workqueue.NewBus(g, queue, hub, names, logger.Component(log, "workqueue"))

	auths := workspace.NewStaticAuthorizationSource()
	repo := workspace.NewRepository(g, authRepo, locks, cache, differ, bus, auths, logger.Component(log, "workspace"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go drainGraphProperty(ctx, queue, names.GraphProperty, logger.Component(log, "worker"))

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/workspaces", workspacesHandler(repo))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Msg("daemon started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// workspacesHandler exposes workspace creation and listing. The caller's
// identity arrives on the X-User-Id header set by the fronting proxy.
func workspacesHandler(repo *workspace.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := models.User{ID: r.Header.Get("X-User-Id")}
		if user.ID == "" {
			http.Error(w, "missing X-User-Id header", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPost:
			var req struct {
				Title string `json:"title"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ws, err := repo.Add(r.Context(), req.Title, user)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(ws)
		case http.MethodGet:
			workspaces, err := repo.FindAllForUser(r.Context(), user)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(workspaces)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// drainGraphProperty consumes the graph property queue, logging each
// message. Failed items are returned to the queue with their retry count
// bumped.
func drainGraphProperty(ctx context.Context, queue *workqueue.GormQueue, name string, log zerolog.Logger) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			item, err := queue.Receive(ctx, name)
			if errors.Is(err, workqueue.ErrEmpty) {
				break
			}
			if err != nil {
				log.Warn().Err(err).Msg("queue receive failed")
				break
			}
			var msg workqueue.GraphPropertyMessage
			procErr := cbor.Unmarshal(item.Payload, &msg)
			if procErr == nil {
				log.Info().
					Str("vertex", msg.VertexID).
					Str("edge", msg.EdgeID).
					Str("property", msg.PropertyName).
					Str("workspace", msg.WorkspaceID).
					Msg("graph property change")
			}
			if err := queue.Complete(ctx, item, procErr); err != nil {
				log.Warn().Err(err).Msg("queue complete failed")
			}
		}
	}
}
