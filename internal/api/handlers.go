package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ChainVault/internal/coordinator"
)

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStats handles GET /stats requests.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Engine.Stats()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleMetrics handles GET /metrics requests.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not available")
		return
	}

	points, err := s.deps.Metrics.Collect(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, points)
}

// handleSnapshot handles GET /admin/snapshot requests.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot not available")
		return
	}

	data, err := s.deps.Ledger.Snapshot()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.snapshot"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleRegisterNode handles POST /nodes requests.
func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req RegisterNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	node, err := s.deps.Nodes.Register(req.Identity, req.TrustScore)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewOf(node))
}

// handleListNodes handles GET /nodes requests.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.deps.Nodes.Nodes()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewsOf(nodes))
}

// handleTrustedNodes handles GET /nodes/trusted requests.
func (s *Server) handleTrustedNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.deps.Nodes.TrustedNodes()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewsOf(nodes))
}

// handleNodeSummary handles GET /nodes/summary requests.
func (s *Server) handleNodeSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Nodes.Summary()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleGetNode handles GET /nodes/{id} requests.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.deps.Nodes.Node(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(node))
}

// handleSetTrust handles PUT /nodes/{id}/trust requests.
func (s *Server) handleSetTrust(w http.ResponseWriter, r *http.Request) {
	var req SetTrustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	node, err := s.deps.Nodes.SetScore(r.PathValue("id"), req.TrustScore)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(node))
}

// handleDeactivate handles POST /nodes/{id}/deactivate requests.
func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	node, err := s.deps.Nodes.Deactivate(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(node))
}

// handleActivate handles POST /nodes/{id}/activate requests.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	node, err := s.deps.Nodes.Activate(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(node))
}

// handleUpload handles POST /files?owner=&name= requests with the raw file as body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, err := requireQuery(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("read body: %v", err))
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty file")
		return
	}

	rec, err := s.deps.Engine.StoreFile(r.Context(), owner, body, r.URL.Query().Get("name"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleListFiles handles GET /files?account= requests.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	account, err := requireQuery(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.deps.Access.Accessible(account)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// handleGetFile handles GET /files/{hash} requests.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	hash, err := fileHash(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.deps.Engine.File(hash)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleRetrieve handles POST /files/{hash}/retrieve requests.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	hash, err := fileHash(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	requester, err := requireQuery(r, "requester")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	simulate, err := boolQuery(r, "simulateFailure")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	failures, err := intQuery(r, "failures")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	got, err := s.deps.Engine.RetrieveFile(r.Context(), hash, requester, coordinator.RetrieveOptions{
		SimulateFailure:     simulate,
		FailuresPerFragment: failures,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RetrieveResponse{
		FileHash: got.Record.FileHash,
		FileName: got.Record.FileName,
		Data:     got.Data,
		Report:   got.Report,
	})
}

// handleListGrants handles GET /files/{hash}/grants?owner= requests.
func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	hash, err := fileHash(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner, err := requireQuery(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	grantees, err := s.deps.Access.Grantees(hash, owner)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fileHash": hash,
		"grantees": grantees,
	})
}

// handleGrant handles POST /files/{hash}/grants requests.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	hash, err := fileHash(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req GrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Owner == "" || req.Grantee == "" {
		writeError(w, http.StatusBadRequest, "owner and grantee are required")
		return
	}

	if err := s.deps.Access.Grant(hash, req.Owner, req.Grantee); err != nil {
		writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRevoke handles DELETE /files/{hash}/grants/{grantee}?owner= requests.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	hash, err := fileHash(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner, err := requireQuery(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Access.Revoke(hash, owner, r.PathValue("grantee")); err != nil {
		writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHasAccess handles GET /files/{hash}/access/{identity} requests.
func (s *Server) handleHasAccess(w http.ResponseWriter, r *http.Request) {
	hash, err := fileHash(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity := r.PathValue("identity")

	ok, err := s.deps.Access.HasAccess(hash, identity)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AccessResponse{FileHash: hash, Identity: identity, HasAccess: ok})
}

// handleVerify handles POST /verify/{hash} requests with the candidate bytes as body.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	hash, err := fileHash(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("read body: %v", err))
		return
	}

	ok, got := s.deps.Engine.Verify(hash, body)

	writeJSON(w, http.StatusOK, VerifyResponse{IsValid: ok, ExpectedHash: hash, UploadedHash: got})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONSize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}

	return nil
}
