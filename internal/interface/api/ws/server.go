// Package ws expone la superficie HTTP del relay: el endpoint
// WebSocket de clientes y los callbacks OAuth de cada proveedor.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"stageLink/internal/domain"
	"stageLink/internal/usecase/relay"
)

type Config struct {
	Addr         string
	TwitchScopes string
}

// Server serves the greeting page, the OAuth routes and the WebSocket
// upgrade. The upgraded connections are hijacked, so the http.Server
// timeouts only bound the plain HTTP routes.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	relay  *relay.Relay
	store  domain.TokenStore
	twitch domain.TwitchAuth
	sl     domain.StreamlabsAuth
	log    *slog.Logger
}

func NewServer(cfg Config, rel *relay.Relay, store domain.TokenStore, twitchAuth domain.TwitchAuth, slAuth domain.StreamlabsAuth, log *slog.Logger) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		relay:  rel,
		store:  store,
		twitch: twitchAuth,
		sl:     slAuth,
		log:    log,
	}
}

// Start levanta el HTTP server y se bloquea hasta que el contexto se
// cancela.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})
	mux.HandleFunc("/twitch/auth/{state}", s.handleTwitchAuth)
	mux.HandleFunc("/twitch/callback", s.handleTwitchCallback)
	mux.HandleFunc("/streamlabs/auth/{state}", s.handleStreamlabsAuth)
	mux.HandleFunc("/streamlabs/callback", s.handleStreamlabsCallback)

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ws: shutdown error", "error", err)
		}
	}()

	s.log.Info("ws: listening", "addr", s.cfg.Addr)

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, "<h1>Hello!</h1>")
}

func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = "Unknown browser"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("ws: upgrade error", "error", err)
		return
	}

	s.log.Info("ws: client connected", "remote", r.RemoteAddr, "user_agent", userAgent)

	go s.relay.HandleClient(ctx, conn, r.RemoteAddr)
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}
