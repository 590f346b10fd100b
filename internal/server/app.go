package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joshyvodetaene/chatual-sub000/internal/auth"
	"github.com/joshyvodetaene/chatual-sub000/internal/bus"
	"github.com/joshyvodetaene/chatual-sub000/internal/config"
	"github.com/joshyvodetaene/chatual-sub000/internal/metrics"
	"github.com/joshyvodetaene/chatual-sub000/internal/storage"
)

// App coordinates the HTTP listener, engine lifecycle, heartbeat and the
// optional cross-instance relay.
type App struct {
	cfg      config.ServerConfig
	log      *slog.Logger
	store    storage.Store
	engine   *Engine
	monitor  *HeartbeatMonitor
	relay    *bus.RedisBus
	upgrader websocket.Upgrader
}

// NewApp constructs a server instance using the provided dependencies.
// relay may be nil for single-instance deployments.
func NewApp(cfg config.ServerConfig, store storage.Store, relay *bus.RedisBus, log *slog.Logger) *App {
	deps := Deps{
		Messages:   store,
		Users:      store,
		Membership: store,
		Logger:     log,
	}
	if relay != nil {
		deps.Relay = relay
	}
	engine := NewEngine(cfg, deps)
	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		engine:  engine,
		monitor: NewHeartbeatMonitor(engine),
		relay:   relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Engine exposes the presence/broadcast surface to embedding code (the
// CRUD layer pushes out-of-band frames through it).
func (a *App) Engine() *Engine { return a.engine }

// Run serves until the context is canceled, then closes every live
// connection with a going-away status.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	go a.monitor.Run(ctx)
	if a.relay != nil {
		go a.relay.Subscribe(ctx, a.engine.InstanceID(), a.engine.DeliverFromRelay)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    a.cfg.ListenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.engine.Shutdown()
		return err
	case <-ctx.Done():
	}

	a.engine.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// handleWS upgrades the request and runs the connection's pumps. An
// optional bearer token pre-binds the connection's user identity.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	tokenUserID, err := a.identityFromRequest(r)
	if err != nil {
		a.log.Warn("handshake rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Error("websocket upgrade", "remote", r.RemoteAddr, "err", err)
		return
	}

	peer := newWSPeer(conn, a.cfg.SendBuffer, a.cfg.WriteTimeout)
	c := a.engine.AddConnection(peer, tokenUserID)

	go peer.writePump()
	peer.readPump(a.engine, c.ID())
}

var errTokenRequired = errors.New("token required")

func (a *App) identityFromRequest(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		if a.cfg.JWT.Require {
			return "", errTokenRequired
		}
		return "", nil
	}
	claims, err := auth.ParseToken(a.cfg.JWT, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
