package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ChainVault/internal/access"
	"ChainVault/internal/codec"
	"ChainVault/internal/coordinator"
	"ChainVault/internal/ledger"
	"ChainVault/internal/metrics"
	"ChainVault/internal/selector"
	"ChainVault/internal/storage"
	"ChainVault/internal/transport"
	"ChainVault/internal/trust"
)

// testServer wires a full engine on in-memory storage and transport.
type testServer struct {
	server    *Server
	transport *transport.Memory
	ledger    *ledger.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l := ledger.New(db)
	reg := trust.New(l, trust.DefaultPolicy())
	ctl := access.New(l)
	mem := transport.NewMemory()
	col := metrics.NewCollector()
	t.Cleanup(func() { col.Shutdown(context.Background()) })

	m, err := metrics.New(col.Provider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	engine, err := coordinator.New(coordinator.Config{MasterKey: key, FragmentSize: 64, Redundancy: 2}, coordinator.Deps{
		Transport: mem,
		Placer:    selector.New(reg),
		Trust:     reg,
		Files:     l,
		Access:    ctl,
		Metrics:   m,
	})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	s := New(":0", Deps{Engine: engine, Nodes: reg, Access: ctl, Ledger: l, Metrics: col})

	return &testServer{server: s, transport: mem, ledger: l}
}

// do sends one request through the router.
func (ts *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	return w
}

// doJSON sends v as a JSON body.
func (ts *testServer) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	return ts.do(t, method, path, body)
}

// decode parses a JSON response into v, failing on an unexpected status.
func decode(t *testing.T, w *httptest.ResponseRecorder, status int, v any) {
	t.Helper()

	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}

	if v == nil {
		return
	}

	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
}

// registerFive registers the standard five-node deployment.
func (ts *testServer) registerFive(t *testing.T) {
	t.Helper()

	for i, score := range []int{95, 85, 75, 60, 40} {
		w := ts.doJSON(t, "POST", "/nodes", RegisterNodeRequest{
			Identity:   "node-" + string(rune('1'+i)),
			TrustScore: score,
		})
		decode(t, w, http.StatusCreated, nil)
	}
}

// upload stores data as owner and returns the record.
func (ts *testServer) upload(t *testing.T, owner, name string, data []byte) ledger.FileRecord {
	t.Helper()

	var rec ledger.FileRecord
	decode(t, ts.do(t, "POST", "/files?owner="+owner+"&name="+name, data), http.StatusCreated, &rec)

	return rec
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var resp map[string]string
	decode(t, ts.do(t, "GET", "/health", nil), http.StatusOK, &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

// TestNodeEndpoints tests registration, listing, trust levels and admin updates.
func TestNodeEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.registerFive(t)

	w := ts.doJSON(t, "POST", "/nodes", RegisterNodeRequest{Identity: "node-1", TrustScore: 50})
	decode(t, w, http.StatusConflict, nil)

	w = ts.doJSON(t, "POST", "/nodes", RegisterNodeRequest{Identity: "node-9", TrustScore: 101})
	decode(t, w, http.StatusBadRequest, nil)

	var all []NodeView
	decode(t, ts.do(t, "GET", "/nodes", nil), http.StatusOK, &all)
	if len(all) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(all))
	}

	var trusted []NodeView
	decode(t, ts.do(t, "GET", "/nodes/trusted", nil), http.StatusOK, &trusted)
	if len(trusted) != 3 {
		t.Fatalf("expected 3 trusted nodes, got %d", len(trusted))
	}

	var node NodeView
	decode(t, ts.do(t, "GET", "/nodes/node-4", nil), http.StatusOK, &node)
	if node.TrustScore != 60 || node.Level != trust.LevelMedium || node.Trusted {
		t.Errorf("unexpected node-4 view: %+v", node)
	}

	decode(t, ts.do(t, "GET", "/nodes/node-404", nil), http.StatusNotFound, nil)

	decode(t, ts.doJSON(t, "PUT", "/nodes/node-4/trust", SetTrustRequest{TrustScore: 80}), http.StatusOK, &node)
	if !node.Trusted || node.Level != trust.LevelHigh {
		t.Errorf("expected node-4 trusted after update: %+v", node)
	}

	decode(t, ts.do(t, "POST", "/nodes/node-1/deactivate", nil), http.StatusOK, &node)
	if node.IsActive || node.Trusted {
		t.Errorf("expected node-1 inactive: %+v", node)
	}

	decode(t, ts.do(t, "POST", "/nodes/node-1/activate", nil), http.StatusOK, &node)
	if !node.IsActive {
		t.Errorf("expected node-1 active: %+v", node)
	}

	var summary trust.Summary
	decode(t, ts.do(t, "GET", "/nodes/summary", nil), http.StatusOK, &summary)
	if summary.Total != 5 || summary.Trusted != 4 || summary.Low != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

// TestUploadRetrieveFlow tests upload, retrieval with simulated failure and the report.
func TestUploadRetrieveFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.registerFive(t)

	data := bytes.Repeat([]byte("chainvault "), 20)
	rec := ts.upload(t, "alice", "notes.txt", data)

	if rec.FileHash != codec.ContentHash(data) {
		t.Fatalf("unexpected hash %s", rec.FileHash)
	}

	var got ledger.FileRecord
	decode(t, ts.do(t, "GET", "/files/"+rec.FileHash, nil), http.StatusOK, &got)
	if got.FileName != "notes.txt" || len(got.Fragments) != len(rec.Fragments) {
		t.Errorf("unexpected record: %+v", got)
	}

	var resp RetrieveResponse
	w := ts.do(t, "POST", "/files/"+rec.FileHash+"/retrieve?requester=alice&simulateFailure=true", nil)
	decode(t, w, http.StatusOK, &resp)

	if !bytes.Equal(resp.Data, data) {
		t.Fatalf("retrieved data differs")
	}

	if len(resp.Report.FailedNodes) == 0 {
		t.Errorf("expected simulated failures in report")
	}

	if resp.Report.FragmentsUsed != len(rec.Fragments) {
		t.Errorf("expected %d fragments used, got %d", len(rec.Fragments), resp.Report.FragmentsUsed)
	}

	w = ts.do(t, "POST", "/files/"+rec.FileHash+"/retrieve?requester=alice&simulateFailure=true&failures=2", nil)
	decode(t, w, http.StatusBadGateway, nil)

	var stats coordinator.Stats
	decode(t, ts.do(t, "GET", "/stats", nil), http.StatusOK, &stats)
	if stats.Files != 1 || stats.Bytes != int64(len(data)) {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// TestUploadErrors tests request validation and engine error mapping.
func TestUploadErrors(t *testing.T) {
	ts := newTestServer(t)

	decode(t, ts.do(t, "POST", "/files?name=x", []byte("data")), http.StatusBadRequest, nil)
	decode(t, ts.do(t, "POST", "/files?owner=alice", nil), http.StatusBadRequest, nil)
	decode(t, ts.do(t, "POST", "/files?owner=alice", []byte("data")), http.StatusServiceUnavailable, nil)

	ts.registerFive(t)
	rec := ts.upload(t, "alice", "a", []byte("data"))

	// Same owner is idempotent.
	again := ts.upload(t, "alice", "a", []byte("data"))
	if again.FileHash != rec.FileHash {
		t.Errorf("expected idempotent upload")
	}

	decode(t, ts.do(t, "POST", "/files?owner=bob", []byte("data")), http.StatusConflict, nil)
	decode(t, ts.do(t, "GET", "/files/not-a-hash", nil), http.StatusBadRequest, nil)
	decode(t, ts.do(t, "GET", "/files/"+codec.ContentHash([]byte("x")), nil), http.StatusNotFound, nil)
}

// TestTamperedFragmentMapsToUnprocessable tests that integrity failures surface as 422.
func TestTamperedFragmentMapsToUnprocessable(t *testing.T) {
	ts := newTestServer(t)
	ts.registerFive(t)

	rec := ts.upload(t, "alice", "a", []byte("hello world"))
	ref := rec.Fragments[0]

	if !ts.transport.Corrupt(ref.AssignedNode, ref.Hash) {
		t.Fatalf("fragment not found on %s", ref.AssignedNode)
	}

	w := ts.do(t, "POST", "/files/"+rec.FileHash+"/retrieve?requester=alice", nil)
	decode(t, w, http.StatusUnprocessableEntity, nil)

	if !strings.Contains(w.Body.String(), "integrity") {
		t.Errorf("expected integrity error, got %s", w.Body.String())
	}
}

// TestGrantEndpoints tests grant, check, list, revoke and the accessible-file listing.
func TestGrantEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.registerFive(t)

	rec := ts.upload(t, "alice", "a", []byte("shared"))
	base := "/files/" + rec.FileHash

	decode(t, ts.do(t, "POST", base+"/retrieve?requester=bob", nil), http.StatusForbidden, nil)

	decode(t, ts.doJSON(t, "POST", base+"/grants", GrantRequest{Owner: "mallory", Grantee: "bob"}), http.StatusForbidden, nil)
	decode(t, ts.doJSON(t, "POST", base+"/grants", GrantRequest{Owner: "alice", Grantee: "bob"}), http.StatusNoContent, nil)
	decode(t, ts.doJSON(t, "POST", base+"/grants", GrantRequest{Owner: "alice", Grantee: "bob"}), http.StatusNoContent, nil)

	var acc AccessResponse
	decode(t, ts.do(t, "GET", base+"/access/bob", nil), http.StatusOK, &acc)
	if !acc.HasAccess {
		t.Errorf("expected bob to have access")
	}

	var grants struct {
		Grantees []string `json:"grantees"`
	}
	decode(t, ts.do(t, "GET", base+"/grants?owner=alice", nil), http.StatusOK, &grants)
	if len(grants.Grantees) != 1 || grants.Grantees[0] != "bob" {
		t.Errorf("unexpected grantees: %v", grants.Grantees)
	}

	var entries []access.Entry
	decode(t, ts.do(t, "GET", "/files?account=bob", nil), http.StatusOK, &entries)
	if len(entries) != 1 || entries[0].Access != access.KindGranted {
		t.Errorf("unexpected entries for bob: %+v", entries)
	}

	decode(t, ts.do(t, "POST", base+"/retrieve?requester=bob", nil), http.StatusOK, nil)

	decode(t, ts.do(t, "DELETE", base+"/grants/bob?owner=alice", nil), http.StatusNoContent, nil)
	decode(t, ts.do(t, "GET", base+"/access/bob", nil), http.StatusOK, &acc)
	if acc.HasAccess {
		t.Errorf("expected bob to lose access after revoke")
	}
}

// TestVerifyEndpoint tests the standalone integrity check.
func TestVerifyEndpoint(t *testing.T) {
	ts := newTestServer(t)
	hash := codec.ContentHash([]byte("hello world"))

	var resp VerifyResponse
	decode(t, ts.do(t, "POST", "/verify/"+hash, []byte("hello world")), http.StatusOK, &resp)
	if !resp.IsValid || resp.UploadedHash != hash {
		t.Errorf("expected valid: %+v", resp)
	}

	decode(t, ts.do(t, "POST", "/verify/"+hash, []byte("hello there")), http.StatusOK, &resp)
	if resp.IsValid {
		t.Errorf("expected mismatch")
	}

	decode(t, ts.do(t, "POST", "/verify/"+strings.ToUpper(hash), []byte("hello world")), http.StatusOK, &resp)
	if !resp.IsValid || resp.ExpectedHash != hash {
		t.Errorf("expected uppercase hash to be normalized: %+v", resp)
	}
}

// TestUppercaseHashLookup tests that file routes accept uppercase hex.
func TestUppercaseHashLookup(t *testing.T) {
	ts := newTestServer(t)
	ts.registerFive(t)

	data := []byte("case insensitive")
	rec := ts.upload(t, "alice", "case.txt", data)
	upper := strings.ToUpper(rec.FileHash)

	var got ledger.FileRecord
	decode(t, ts.do(t, "GET", "/files/"+upper, nil), http.StatusOK, &got)
	if got.FileHash != rec.FileHash {
		t.Errorf("expected %s, got %s", rec.FileHash, got.FileHash)
	}

	var resp RetrieveResponse
	decode(t, ts.do(t, "POST", "/files/"+upper+"/retrieve?requester=alice", nil), http.StatusOK, &resp)
	if !bytes.Equal(resp.Data, data) {
		t.Errorf("retrieved data differs")
	}
}

// TestSnapshotAndMetricsEndpoints tests the operator endpoints.
func TestSnapshotAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.registerFive(t)
	ts.upload(t, "alice", "a", []byte("snap"))

	w := ts.do(t, "GET", "/admin/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body, _ := io.ReadAll(w.Body)

	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	n, err := ledger.New(db).Restore(body)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if n != 6 {
		t.Errorf("expected 6 restored entries, got %d", n)
	}

	var points []metrics.Point
	decode(t, ts.do(t, "GET", "/metrics", nil), http.StatusOK, &points)

	found := false
	for _, p := range points {
		if p.Name == "chainvault.uploads" && p.Value == 1 {
			found = true
		}
	}

	if !found {
		t.Errorf("expected chainvault.uploads=1 in %+v", points)
	}
}

// TestOptionalEndpointsUnavailable tests the 503 answers without optional deps.
func TestOptionalEndpointsUnavailable(t *testing.T) {
	s := New(":0", Deps{})

	for _, path := range []string{"/metrics", "/admin/snapshot"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}
