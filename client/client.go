// Package client is a Go client for the vault HTTP API.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ChainVault/internal/access"
	"ChainVault/internal/api"
	"ChainVault/internal/coordinator"
	"ChainVault/internal/ledger"
	"ChainVault/internal/trust"
)

// Client talks to a vault daemon.
type Client struct {
	baseURL string       // baseURL is the scheme and host, e.g. "http://127.0.0.1:8080"
	http    *http.Client // http sends every request
}

// New creates a client for addr. A bare host:port gets the http scheme.
func New(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Health checks that the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil)
}

// Stats returns the stored-file summary.
func (c *Client) Stats(ctx context.Context) (coordinator.Stats, error) {
	var s coordinator.Stats
	err := c.getJSON(ctx, "/stats", &s)

	return s, err
}

// RegisterNode registers a storage node with an initial trust score.
func (c *Client) RegisterNode(ctx context.Context, identity string, score int) (api.NodeView, error) {
	var n api.NodeView
	err := c.sendJSON(ctx, http.MethodPost, "/nodes", api.RegisterNodeRequest{Identity: identity, TrustScore: score}, http.StatusCreated, &n)

	return n, err
}

// Nodes lists every registered node.
func (c *Client) Nodes(ctx context.Context) ([]api.NodeView, error) {
	var out []api.NodeView
	err := c.getJSON(ctx, "/nodes", &out)

	return out, err
}

// TrustedNodes lists the nodes eligible for placement.
func (c *Client) TrustedNodes(ctx context.Context) ([]api.NodeView, error) {
	var out []api.NodeView
	err := c.getJSON(ctx, "/nodes/trusted", &out)

	return out, err
}

// Node returns one node.
func (c *Client) Node(ctx context.Context, identity string) (api.NodeView, error) {
	var n api.NodeView
	err := c.getJSON(ctx, "/nodes/"+url.PathEscape(identity), &n)

	return n, err
}

// NodeSummary returns trust-level counts.
func (c *Client) NodeSummary(ctx context.Context) (trust.Summary, error) {
	var s trust.Summary
	err := c.getJSON(ctx, "/nodes/summary", &s)

	return s, err
}

// SetTrust overrides a node's trust score.
func (c *Client) SetTrust(ctx context.Context, identity string, score int) (api.NodeView, error) {
	var n api.NodeView
	err := c.sendJSON(ctx, http.MethodPut, "/nodes/"+url.PathEscape(identity)+"/trust",
		api.SetTrustRequest{TrustScore: score}, http.StatusOK, &n)

	return n, err
}

// Deactivate removes a node from future placements.
func (c *Client) Deactivate(ctx context.Context, identity string) (api.NodeView, error) {
	var n api.NodeView
	err := c.do(ctx, http.MethodPost, "/nodes/"+url.PathEscape(identity)+"/deactivate", "", nil, http.StatusOK, &n)

	return n, err
}

// Activate returns a node to placement eligibility.
func (c *Client) Activate(ctx context.Context, identity string) (api.NodeView, error) {
	var n api.NodeView
	err := c.do(ctx, http.MethodPost, "/nodes/"+url.PathEscape(identity)+"/activate", "", nil, http.StatusOK, &n)

	return n, err
}

// Upload stores data for owner and returns the file record with its fragment manifest.
func (c *Client) Upload(ctx context.Context, owner, name string, data []byte) (ledger.FileRecord, error) {
	q := url.Values{"owner": {owner}, "name": {name}}

	var rec ledger.FileRecord
	err := c.do(ctx, http.MethodPost, "/files?"+q.Encode(), "application/octet-stream", data, http.StatusCreated, &rec)

	return rec, err
}

// Files lists the files account owns or was granted.
func (c *Client) Files(ctx context.Context, account string) ([]access.Entry, error) {
	var out []access.Entry
	err := c.getJSON(ctx, "/files?"+url.Values{"account": {account}}.Encode(), &out)

	return out, err
}

// File returns a file record.
func (c *Client) File(ctx context.Context, hash string) (ledger.FileRecord, error) {
	var rec ledger.FileRecord
	err := c.getJSON(ctx, "/files/"+hash, &rec)

	return rec, err
}

// Retrieve reconstructs a file as requester.
func (c *Client) Retrieve(ctx context.Context, hash, requester string, opts coordinator.RetrieveOptions) (api.RetrieveResponse, error) {
	q := url.Values{"requester": {requester}}
	if opts.SimulateFailure {
		q.Set("simulateFailure", "true")
	}

	if opts.FailuresPerFragment > 0 {
		q.Set("failures", strconv.Itoa(opts.FailuresPerFragment))
	}

	var resp api.RetrieveResponse
	err := c.do(ctx, http.MethodPost, "/files/"+hash+"/retrieve?"+q.Encode(), "", nil, http.StatusOK, &resp)

	return resp, err
}

// Grant lets grantee retrieve hash.
func (c *Client) Grant(ctx context.Context, hash, owner, grantee string) error {
	return c.sendJSON(ctx, http.MethodPost, "/files/"+hash+"/grants",
		api.GrantRequest{Owner: owner, Grantee: grantee}, http.StatusNoContent, nil)
}

// Revoke removes grantee's access to hash.
func (c *Client) Revoke(ctx context.Context, hash, owner, grantee string) error {
	path := "/files/" + hash + "/grants/" + url.PathEscape(grantee) + "?" + url.Values{"owner": {owner}}.Encode()
	return c.do(ctx, http.MethodDelete, path, "", nil, http.StatusNoContent, nil)
}

// Grantees lists the identities granted on hash.
func (c *Client) Grantees(ctx context.Context, hash, owner string) ([]string, error) {
	var resp struct {
		Grantees []string `json:"grantees"`
	}
	err := c.getJSON(ctx, "/files/"+hash+"/grants?"+url.Values{"owner": {owner}}.Encode(), &resp)

	return resp.Grantees, err
}

// HasAccess reports whether identity may retrieve hash.
func (c *Client) HasAccess(ctx context.Context, hash, identity string) (bool, error) {
	var resp api.AccessResponse
	err := c.getJSON(ctx, "/files/"+hash+"/access/"+url.PathEscape(identity), &resp)

	return resp.HasAccess, err
}

// Verify checks candidate against an expected file hash without a retrieval.
func (c *Client) Verify(ctx context.Context, hash string, candidate []byte) (api.VerifyResponse, error) {
	var resp api.VerifyResponse
	err := c.do(ctx, http.MethodPost, "/verify/"+hash, "application/octet-stream", candidate, http.StatusOK, &resp)

	return resp, err
}

// Snapshot downloads the compressed ledger snapshot.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := c.do(ctx, http.MethodGet, "/admin/snapshot", "", nil, http.StatusOK, &data)

	return data, err
}
