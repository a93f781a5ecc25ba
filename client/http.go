package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	Method  string // Method is the HTTP method
	URL     string // URL is the request URL
	Status  int    // Status is the response status code
	Message string // Message is the server's error text, if any
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	}

	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Message)
}

// do sends a request and decodes a JSON response into result when it is non-nil.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, want int, result any) error {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s %s:\n%w", method, url, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s:\n%w", method, url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)

		return &StatusError{Method: method, URL: url, Status: resp.StatusCode, Message: e.Error}
	}

	if result == nil {
		return nil
	}

	if raw, ok := result.(*[]byte); ok {
		*raw, err = io.ReadAll(resp.Body)
		return err
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// getJSON performs a GET request and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, http.StatusOK, result)
}

// sendJSON performs a request with a JSON body and decodes the JSON response.
func (c *Client) sendJSON(ctx context.Context, method, path string, body any, want int, result any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body:\n%w", err)
	}

	return c.do(ctx, method, path, "application/json", jsonBytes, want, result)
}
