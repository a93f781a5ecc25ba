package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ChainVault/internal/codec"
)

// fileHash reads and validates the {hash} path value. Hex digits are lowercased to match ledger keys.
func fileHash(r *http.Request) (string, error) {
	hash := strings.ToLower(r.PathValue("hash"))
	if len(hash) != codec.HashHexLen {
		return "", fmt.Errorf("file hash must be %d hex characters, got %d", codec.HashHexLen, len(hash))
	}

	if _, err := hex.DecodeString(hash); err != nil {
		return "", fmt.Errorf("file hash is not hex")
	}

	return hash, nil
}

// requireQuery returns a non-empty query parameter.
func requireQuery(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("query parameter %q is required", name)
	}

	return v, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("query parameter %q: %v", name, err)
	}

	return b, nil
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("query parameter %q must be a non-negative integer", name)
	}

	return n, nil
}
