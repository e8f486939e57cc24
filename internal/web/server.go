// Package web implements the HTTP server and dashboard for archwall. It
// serves the page, the JSON API and live state over WebSocket and SSE.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/api"
	"archwall.mini/aw/internal/client"
	"archwall.mini/aw/internal/docs"
	"archwall.mini/aw/internal/logger"
	"archwall.mini/aw/internal/trust"
	"archwall.mini/aw/internal/types"
)

// Machine is the client state machine the dashboard drives and watches.
type Machine interface {
	api.Machine
	Updates() <-chan struct{}
}

// TemplateData holds the data to be passed to the HTML template.
type TemplateData struct {
	CurrentVersion string
	BuildTime      string
	State          client.State
	DocList        []string
	DocContent     template.HTML
	CurrentDoc     string
}

// broker fans state messages out to streaming clients
type broker struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func newBroker() *broker {
	return &broker{
		clients: make(map[chan []byte]struct{}),
	}
}

func (b *broker) register() chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	client := make(chan []byte, 16)
	b.clients[client] = struct{}{}
	return client
}

func (b *broker) unregister(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
	}
}

func (b *broker) broadcast(data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- data:
		default:
			// Client is slow/blocked, skip
		}
	}
}

func (b *broker) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Options configures a Server.
type Options struct {
	Machine Machine
	Store   *trust.Store
	Ring    *logger.Ring
	Docs    *docs.Service
	Port    int
	Log     zerolog.Logger
}

// Server is the web server for the dashboard and API.
type Server struct {
	machine    Machine
	port       int
	templates  *template.Template
	ring       *logger.Ring
	log        zerolog.Logger
	broker     *broker
	trusted    *broker
	store      *trust.Store
	apiService *api.Service
	docService *docs.Service
	router     *mux.Router

	httpSrv  *http.Server
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a new web server and starts forwarding state changes to
// streaming clients.
func NewServer(opts Options) (*Server, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	docService := opts.Docs
	if docService == nil {
		docService = docs.NewService(nil)
	}

	s := &Server{
		machine:    opts.Machine,
		port:       opts.Port,
		templates:  templates,
		ring:       opts.Ring,
		log:        opts.Log.With().Str("component", "web").Logger(),
		broker:     newBroker(),
		trusted:    newBroker(),
		store:      opts.Store,
		apiService: api.NewService(opts.Machine, opts.Store, opts.Ring, opts.Log),
		docService: docService,
		done:       make(chan struct{}),
	}
	s.router = s.routes()

	s.log.Info().Msg("Archwall server initialized")

	go s.watchState()
	if s.store != nil {
		go s.watchTrust()
	}

	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handlePageLoad).Methods(http.MethodGet)
	r.HandleFunc("/views/entries", s.handleEntriesView).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleDocsView).Methods(http.MethodGet)
	r.HandleFunc("/docs/{name}", s.handleDocsView).Methods(http.MethodGet)

	r.HandleFunc("/api/health", s.apiService.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/version", s.apiService.HandleVersion).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", s.apiService.HandleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/state", s.apiService.HandleState).Methods(http.MethodGet)
	r.HandleFunc("/api/state/stream", s.handleStateStream).Methods(http.MethodGet)
	r.HandleFunc("/api/connect", s.apiService.HandleConnect).Methods(http.MethodPost)
	r.HandleFunc("/api/initialize", s.apiService.HandleInitialize).Methods(http.MethodPost)
	r.HandleFunc("/api/entries", s.apiService.HandleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/refresh", s.apiService.HandleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/disconnect", s.apiService.HandleDisconnect).Methods(http.MethodPost)
	r.HandleFunc("/api/error/dismiss", s.apiService.HandleDismissError).Methods(http.MethodPost)
	r.HandleFunc("/api/wallet/trusted", s.apiService.HandleTrusted).Methods(http.MethodGet)
	r.HandleFunc("/api/wallet/trusted/stream", s.handleTrustedStream).Methods(http.MethodGet)
	r.HandleFunc("/api/wallet/revoke", s.apiService.HandleRevoke).Methods(http.MethodPost)
	r.HandleFunc("/api/wallet/backup", s.apiService.HandleBackup).Methods(http.MethodPost)

	r.HandleFunc("/ws/state", s.handleStateWS)
	r.HandleFunc("/ws/status", s.handleStatusWS)

	r.Use(s.checkOrigin)
	return r
}

// checkOrigin refuses state-changing requests sent by a page from another
// origin. Requests without an Origin header come from non-browser clients
// and pass.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !sameOrigin(r) {
				s.log.Warn().Str("origin", r.Header.Get("Origin")).Str("path", r.URL.Path).Msg("Cross-origin request refused")
				http.Error(w, "Cross-origin request refused", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sameOrigin reports whether the Origin header, if any, names this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the web server in the background. The channel receives the
// listener error, or nil after Shutdown.
func (s *Server) Start() <-chan error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msgf("Web UI: Starting dashboard and API server on http://localhost:%d", s.port)

	errCh := make(chan error, 1)
	go func() {
		err := s.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
		close(errCh)
	}()
	return errCh
}

// Shutdown stops forwarding state and gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// watchState broadcasts every machine state change to streaming clients
func (s *Server) watchState() {
	updates := s.machine.Updates()
	for {
		select {
		case <-s.done:
			return
		case <-updates:
			data, err := json.Marshal(s.machine.State())
			if err != nil {
				s.log.Error().Err(err).Msg("Failed to encode state")
				continue
			}
			s.broker.broadcast(data)
		}
	}
}

// watchTrust broadcasts the trusted wallet list whenever the store changes
func (s *Server) watchTrust() {
	updates := s.store.Updates()
	for {
		select {
		case <-s.done:
			return
		case <-updates:
			data, err := s.trustedJSON()
			if err != nil {
				s.log.Error().Err(err).Msg("Failed to list trusted wallets")
				continue
			}
			s.trusted.broadcast(data)
		}
	}
}

func (s *Server) trustedJSON() ([]byte, error) {
	records, err := s.store.List()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []trust.Record{}
	}
	return json.Marshal(records)
}

func (s *Server) handlePageLoad(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.setCacheHeaders(w)
	docList, _ := s.docService.ListDocs()
	err := s.templates.ExecuteTemplate(w, "layout.html", TemplateData{
		CurrentVersion: types.Version,
		BuildTime:      types.BuildTime,
		State:          s.machine.State(),
		DocList:        docList,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Error executing layout template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// handleEntriesView renders the entry list alone for partial refreshes.
func (s *Server) handleEntriesView(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "entries", TemplateData{State: s.machine.State()}); err != nil {
		s.log.Error().Err(err).Msg("Error executing entries template")
		http.Error(w, "Failed to render view", http.StatusInternalServerError)
		return
	}
	s.setCacheHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleDocsView(w http.ResponseWriter, r *http.Request) {
	docName := mux.Vars(r)["name"]
	docList, _ := s.docService.ListDocs()
	if docName == "" && len(docList) > 0 {
		docName = docList[0]
	}

	var docContent string
	if docName != "" {
		content, err := s.docService.GetDoc(r.Context(), docName)
		switch {
		case errors.Is(err, docs.ErrNotFound):
			http.NotFound(w, r)
			return
		case err != nil:
			s.log.Error().Err(err).Str("doc", docName).Msg("Failed to load doc")
			http.Error(w, "Failed to render document", http.StatusInternalServerError)
			return
		}
		docContent = content
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "docs.html", TemplateData{
		CurrentVersion: types.Version,
		BuildTime:      types.BuildTime,
		DocList:        docList,
		DocContent:     template.HTML(docContent),
		CurrentDoc:     docName,
	}); err != nil {
		s.log.Error().Err(err).Msg("Error executing docs template")
		http.Error(w, "Failed to render view", http.StatusInternalServerError)
		return
	}
	s.setCacheHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleStateStream streams state changes as server-sent events
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, s.broker, "state", func() ([]byte, error) {
		return json.Marshal(s.machine.State())
	})
}

// handleTrustedStream streams the trusted wallet list as it changes
func (s *Server) handleTrustedStream(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Trust store unavailable", http.StatusServiceUnavailable)
		return
	}
	s.serveSSE(w, r, s.trusted, "trusted", s.trustedJSON)
}

func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, b *broker, event string, initial func() ([]byte, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable proxy buffering

	clientChan := b.register()
	defer b.unregister(clientChan)

	s.log.Debug().Str("event", event).Msg("SSE client connected")
	defer s.log.Debug().Str("event", event).Msg("SSE client disconnected")

	if data, err := initial(); err == nil {
		writeSSE(w, event, data)
		flusher.Flush()
	}

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case data := <-clientChan:
			writeSSE(w, event, data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// setCacheHeaders sets cache-busting headers to prevent browser caching.
func (s *Server) setCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
