package api

import (
	"ChainVault/internal/coordinator"
	"ChainVault/internal/ledger"
	"ChainVault/internal/trust"
)

// RegisterNodeRequest is the body of POST /nodes.
type RegisterNodeRequest struct {
	Identity   string `json:"identity"`
	TrustScore int    `json:"trustScore"`
}

// SetTrustRequest is the body of PUT /nodes/{id}/trust.
type SetTrustRequest struct {
	TrustScore int `json:"trustScore"`
}

// NodeView is a node with its trust classification.
type NodeView struct {
	ledger.StorageNode
	Level   trust.Level `json:"trustLevel"`
	Trusted bool        `json:"trusted"`
}

// GrantRequest is the body of POST /files/{hash}/grants.
type GrantRequest struct {
	Owner   string `json:"owner"`
	Grantee string `json:"grantee"`
}

// AccessResponse answers GET /files/{hash}/access/{identity}.
type AccessResponse struct {
	FileHash  string `json:"fileHash"`
	Identity  string `json:"identity"`
	HasAccess bool   `json:"hasAccess"`
}

// RetrieveResponse carries a reconstructed file. Data is base64 in JSON.
type RetrieveResponse struct {
	FileHash string             `json:"fileHash"`
	FileName string             `json:"fileName"`
	Data     []byte             `json:"data"`
	Report   coordinator.Report `json:"report"`
}

// VerifyResponse answers POST /verify/{hash}.
type VerifyResponse struct {
	IsValid      bool   `json:"isValid"`
	ExpectedHash string `json:"expectedHash"`
	UploadedHash string `json:"uploadedHash"`
}

func viewOf(n ledger.StorageNode) NodeView {
	return NodeView{StorageNode: n, Level: trust.LevelOf(n.TrustScore), Trusted: trust.IsTrusted(n)}
}

func viewsOf(nodes []ledger.StorageNode) []NodeView {
	out := make([]NodeView, len(nodes))
	for i, n := range nodes {
		out[i] = viewOf(n)
	}

	return out
}
