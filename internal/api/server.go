package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ChainVault/internal/access"
	"ChainVault/internal/coordinator"
	"ChainVault/internal/ledger"
	"ChainVault/internal/logger"
	"ChainVault/internal/metrics"
	"ChainVault/internal/trust"
)

const (
	// maxUploadSize is the largest accepted file body.
	maxUploadSize = 64 << 20

	// maxJSONSize is the largest accepted JSON request body.
	maxJSONSize = 64 << 10
)

// Engine stores, retrieves and verifies files.
type Engine interface {
	StoreFile(ctx context.Context, owner string, data []byte, name string) (ledger.FileRecord, error)
	RetrieveFile(ctx context.Context, hash, requester string, opts coordinator.RetrieveOptions) (*coordinator.Retrieval, error)
	File(hash string) (ledger.FileRecord, error)
	Verify(expected string, candidate []byte) (bool, string)
	Stats() (coordinator.Stats, error)
}

// Nodes manages storage node registrations.
type Nodes interface {
	Register(id string, score int) (ledger.StorageNode, error)
	Node(id string) (ledger.StorageNode, error)
	Nodes() ([]ledger.StorageNode, error)
	TrustedNodes() ([]ledger.StorageNode, error)
	SetScore(id string, score int) (ledger.StorageNode, error)
	Deactivate(id string) (ledger.StorageNode, error)
	Activate(id string) (ledger.StorageNode, error)
	Summary() (trust.Summary, error)
}

// Access manages grants.
type Access interface {
	Grant(hash, owner, grantee string) error
	Revoke(hash, owner, grantee string) error
	HasAccess(hash, identity string) (bool, error)
	Grantees(hash, owner string) ([]string, error)
	Accessible(account string) ([]access.Entry, error)
}

// Snapshotter exports the ledger.
type Snapshotter interface {
	Snapshot() ([]byte, error)
}

// Deps are the collaborators served by the API.
type Deps struct {
	Engine  Engine
	Nodes   Nodes
	Access  Access
	Ledger  Snapshotter        // Ledger is optional; /admin/snapshot answers 503 without it
	Metrics *metrics.Collector // Metrics is optional; /metrics answers 503 without it
}

// Server is the HTTP API server.
type Server struct {
	addr    string       // addr is the HTTP listen address
	deps    Deps         // deps are the served components
	handler http.Handler // handler routes every endpoint
	server  *http.Server // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, deps Deps) *Server {
	s := &Server{addr: addr, deps: deps}
	s.handler = s.routes()

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /admin/snapshot", s.handleSnapshot)

	mux.HandleFunc("POST /nodes", s.handleRegisterNode)
	mux.HandleFunc("GET /nodes", s.handleListNodes)
	mux.HandleFunc("GET /nodes/trusted", s.handleTrustedNodes)
	mux.HandleFunc("GET /nodes/summary", s.handleNodeSummary)
	mux.HandleFunc("GET /nodes/{id}", s.handleGetNode)
	mux.HandleFunc("PUT /nodes/{id}/trust", s.handleSetTrust)
	mux.HandleFunc("POST /nodes/{id}/deactivate", s.handleDeactivate)
	mux.HandleFunc("POST /nodes/{id}/activate", s.handleActivate)

	mux.HandleFunc("POST /files", s.handleUpload)
	mux.HandleFunc("GET /files", s.handleListFiles)
	mux.HandleFunc("GET /files/{hash}", s.handleGetFile)
	mux.HandleFunc("POST /files/{hash}/retrieve", s.handleRetrieve)
	mux.HandleFunc("GET /files/{hash}/grants", s.handleListGrants)
	mux.HandleFunc("POST /files/{hash}/grants", s.handleGrant)
	mux.HandleFunc("DELETE /files/{hash}/grants/{grantee}", s.handleRevoke)
	mux.HandleFunc("GET /files/{hash}/access/{identity}", s.handleHasAccess)
	mux.HandleFunc("POST /verify/{hash}", s.handleVerify)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
