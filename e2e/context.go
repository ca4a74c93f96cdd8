package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"securekyc/internal/app"
	"securekyc/internal/platform/config"
	"securekyc/pkg/platform/middleware/admin"
)

const adminAPIToken = "e2e-admin-token"

// TestContext holds one scenario's server and the last exchange with it.
type TestContext struct {
	app    *app.App
	server *httptest.Server
	client *http.Client

	lastStatus int
	lastBody   []byte

	accessToken string
}

// Start boots a fresh in-memory service for the scenario.
func (tc *TestContext) Start(ctx context.Context) error {
	cfg := config.Server{
		JWTSigningKey:  "e2e-signing-key",
		JWTIssuer:      "securekyc-e2e",
		AccessTokenTTL: time.Hour,
		AdminAPIToken:  adminAPIToken,
		TxTimeout:      5 * time.Second,
		Notify:         config.NotifyConfig{Timeout: time.Second},
	}
	a, err := app.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		app.WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	tc.app = a
	tc.server = httptest.NewServer(a.Handler())
	tc.client = tc.server.Client()
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.accessToken = ""
	return nil
}

// Stop shuts the scenario's server down.
func (tc *TestContext) Stop() {
	if tc.server != nil {
		tc.server.Close()
	}
	if tc.app != nil {
		tc.app.Close()
	}
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) bearer() map[string]string {
	if tc.accessToken == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + tc.accessToken}
}

// POST sends body as JSON, authenticated when a token is held.
func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, tc.bearer())
}

// POSTAnonymous sends body as JSON without credentials.
func (tc *TestContext) POSTAnonymous(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

// GET fetches path, authenticated when a token is held.
func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, tc.bearer())
}

// GETAdmin fetches path presenting token as the admin secret.
func (tc *TestContext) GETAdmin(path, token string) error {
	return tc.do(http.MethodGet, path, nil, map[string]string{admin.HeaderAdminToken: token})
}

func (tc *TestContext) GetLastStatusCode() int { return tc.lastStatus }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

// AdminToken returns the admin secret the scenario server accepts.
func (tc *TestContext) AdminToken() string { return adminAPIToken }

func (tc *TestContext) GetAccessToken() string { return tc.accessToken }

func (tc *TestContext) SetAccessToken(token string) { tc.accessToken = token }
