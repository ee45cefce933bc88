// Package gateway hosts the chat backend: the websocket fan-out surface,
// the room and history REST endpoints, and the social directory endpoints,
// all backed by the SQLite store.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/DANG-PH/NgocRongOnline/internal/gateway/storage/sqlite"
	"github.com/DANG-PH/NgocRongOnline/internal/platform/timeouts"
)

// Config defines the inputs for the gateway process.
type Config struct {
	HTTPAddr          string
	DBPath            string
	TokenSecret       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the gateway HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
	verifier        TokenVerifier
	hub             *hub
	tracer          trace.Tracer
	now             func() time.Time
}

// NewServer builds a configured gateway server, opening its store and
// applying migrations.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	verifier, err := NewJWTVerifier(config.TokenSecret)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open gateway store: %w", err)
	}

	server := newServerCore(store, verifier)
	server.httpAddr = httpAddr
	server.shutdownTimeout = config.ShutdownTimeout
	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

// NewHandler creates gateway routes over an already open store. Tests use
// this to serve through httptest without a listener of their own.
func NewHandler(store *sqlite.Store, verifier TokenVerifier) (http.Handler, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	return newServerCore(store, verifier).routes(), nil
}

func newServerCore(store *sqlite.Store, verifier TokenVerifier) *Server {
	return &Server{
		store:    store,
		verifier: verifier,
		hub:      newHub(),
		tracer:   otel.Tracer("gateway"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := s.wsHandler()
	mux.HandleFunc("/ws-chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	mux.HandleFunc("/chat/1-1", s.method(http.MethodPost, s.withIdentity(s.handleDirectRoom)))
	mux.HandleFunc("/chat/group", s.method(http.MethodPost, s.withIdentity(s.handleGroupRoom)))
	mux.HandleFunc("/chat/message", s.method(http.MethodGet, s.withIdentity(s.handleMessages)))

	mux.HandleFunc("/social_network/all-friend", s.method(http.MethodGet, s.withIdentity(s.handleAllFriends)))
	mux.HandleFunc("/social_network/sent-friend", s.method(http.MethodGet, s.withIdentity(s.handleSentRequests)))
	mux.HandleFunc("/social_network/incoming-friend", s.method(http.MethodGet, s.withIdentity(s.handleIncomingRequests)))
	mux.HandleFunc("/social_network/all-group", s.method(http.MethodGet, s.withIdentity(s.handleAllGroups)))
	mux.HandleFunc("/social_network/add-friend", s.method(http.MethodPost, s.withIdentity(s.handleAddFriend)))
	mux.HandleFunc("/social_network/accept-friend", s.method(http.MethodPatch, s.withIdentity(s.handleAcceptFriend)))
	mux.HandleFunc("/social_network/reject-friend", s.method(http.MethodDelete, s.withIdentity(s.handleRejectFriend)))
	mux.HandleFunc("/social_network/unfriend", s.method(http.MethodDelete, s.withIdentity(s.handleUnfriend)))

	mux.HandleFunc("/auth/all-user", s.method(http.MethodGet, s.withIdentity(s.handleAllUsers)))

	return mux
}

func (s *Server) method(allowed string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != allowed {
			w.Header().Set("Allow", allowed)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// Run creates and serves a gateway until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init gateway server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve gateway: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return errors.New("gateway server is not configured")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("gateway listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close gateway store: %v", err)
		}
	}
}
