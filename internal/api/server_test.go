package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/rally/internal/audit"
	"github.com/benaskins/rally/internal/fault"
	"github.com/benaskins/rally/internal/keychain"
	"github.com/benaskins/rally/internal/relay"
)

type testEnv struct {
	client    *http.Client
	store     *keychain.MemoryStore
	auditPath string
}

func setupTestServer(t *testing.T) testEnv {
	t.Helper()

	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	auditLog, err := audit.NewLogger(auditPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	meta, err := keychain.NewMetadataStore(filepath.Join(dir, "key-metadata.json"))
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	store := keychain.NewMemoryStore()
	cred := keychain.NewAuditedCredential(keychain.NewCredential(store), auditLog, meta, "daemon")
	srv := NewServer(cred, relay.New(), auditLog)

	sockPath := filepath.Join(dir, "test.sock")
	go srv.ListenUnix(sockPath)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	// Wait for socket to be ready
	for i := 0; i < 50; i++ {
		if conn, err := net.Dial("unix", sockPath); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sockPath)
			},
		},
	}

	return testEnv{client: client, store: store, auditPath: auditPath}
}

func do(t *testing.T, c *http.Client, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, "http://rally"+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp := do(t, env.client, "GET", "/v1/health", nil)
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]string
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %q", result["status"])
	}
}

func TestGetAPIKeyAbsent(t *testing.T) {
	env := setupTestServer(t)

	resp := do(t, env.client, "GET", "/v1/api-key", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(raw)) != `{"apiKey":null}` {
		t.Errorf("expected null apiKey, got %s", raw)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := setupTestServer(t)

	resp := do(t, env.client, "PUT", "/v1/api-key", map[string]string{"apiKey": "_zsession"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT: expected 204, got %d", resp.StatusCode)
	}

	resp = do(t, env.client, "GET", "/v1/api-key", nil)
	var got struct {
		APIKey *string `json:"apiKey"`
	}
	json.NewDecoder(resp.Body).Decode(&got)
	if got.APIKey == nil || *got.APIKey != "_zsession" {
		t.Fatalf("GET: expected _zsession, got %v", got.APIKey)
	}

	resp = do(t, env.client, "GET", "/v1/api-key/status", nil)
	var status keyStatus
	json.NewDecoder(resp.Body).Decode(&status)
	if !status.Present || status.Meta == nil {
		t.Errorf("status: expected present with metadata, got %+v", status)
	}

	for i := 0; i < 2; i++ {
		resp = do(t, env.client, "DELETE", "/v1/api-key", nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("DELETE #%d: expected 204, got %d", i+1, resp.StatusCode)
		}
	}

	resp = do(t, env.client, "GET", "/v1/api-key", nil)
	got.APIKey = nil
	json.NewDecoder(resp.Body).Decode(&got)
	if got.APIKey != nil {
		t.Errorf("expected key to be absent after delete, got %q", *got.APIKey)
	}
}

func TestSetAPIKeyRequiresField(t *testing.T) {
	env := setupTestServer(t)

	resp := do(t, env.client, "PUT", "/v1/api-key", map[string]string{"key": "wrong-field"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	env := setupTestServer(t)
	env.store.FailWith(keychain.ErrUnavailable)

	resp := do(t, env.client, "GET", "/v1/api-key", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["kind"] != string(fault.StoreUnavailable) {
		t.Errorf("expected kind store_unavailable, got %q", body["kind"])
	}
}

func TestRelayPassesThrough404(t *testing.T) {
	env := setupTestServer(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(relay.AuthHeader) != "caller-key" {
			t.Errorf("upstream got %s %q", relay.AuthHeader, r.Header.Get(relay.AuthHeader))
		}
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "not found")
	}))
	t.Cleanup(upstream.Close)

	// The stored key must not leak into the relayed call.
	env.store.Set(keychain.AccountName, "stored-key")

	resp := do(t, env.client, "POST", "/v1/relay", relay.Request{
		URL:    upstream.URL + "/defect/1",
		Method: "GET",
		APIKey: "caller-key",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got relay.Response
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Status != 404 || got.Body != "not found" {
		t.Errorf("expected {404 not found}, got %+v", got)
	}
}

func TestRelayErrorKinds(t *testing.T) {
	env := setupTestServer(t)

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name   string
		req    relay.Request
		status int
		kind   fault.Kind
	}{
		{"invalid method", relay.Request{URL: closedURL, Method: "", APIKey: "k"}, 400, fault.InvalidMethod},
		{"relative url", relay.Request{URL: "/defect", Method: "GET", APIKey: "k"}, 400, fault.InvalidURL},
		{"control byte in key", relay.Request{URL: closedURL, Method: "GET", APIKey: "bad\nkey"}, 400, fault.InvalidAPIKey},
		{"unreachable", relay.Request{URL: closedURL, Method: "GET", APIKey: "k"}, 502, fault.TransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, env.client, "POST", "/v1/relay", tt.req)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if body["kind"] != string(tt.kind) {
				t.Errorf("expected kind %q, got %q", tt.kind, body["kind"])
			}
		})
	}
}

func TestRelayIsAudited(t *testing.T) {
	env := setupTestServer(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(upstream.Close)

	do(t, env.client, "POST", "/v1/relay", relay.Request{URL: upstream.URL, Method: "get", APIKey: "secret-key"})

	data, err := os.ReadFile(env.auditPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(data, []byte("secret-key")) {
		t.Error("audit log must not contain the API key")
	}
	var e audit.Entry
	if err := json.Unmarshal(bytes.TrimSpace(data), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Action != audit.ActionRelay || e.Status != http.StatusTeapot {
		t.Errorf("unexpected audit entry: %+v", e)
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(fault.StoreWriteFailed); got != 500 {
		t.Errorf("StoreWriteFailed -> %d, want 500", got)
	}
	if got := StatusFor(fault.BodyReadError); got != 502 {
		t.Errorf("BodyReadError -> %d, want 502", got)
	}
}

func TestWriteErrorPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("boom"))
	if rec.Code != 500 {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
