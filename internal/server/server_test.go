package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bondify/bondify/internal/config"
	"github.com/bondify/bondify/internal/logging"
)

func TestNewInDevelopmentUsesMemoryStore(t *testing.T) {
	cfg := config.Config{AppName: "bondify-test", AppEnv: "test", Port: "0", KYCSubmitPerMinute: 3}
	srv, err := New(cfg, nil, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"store":"memory"`) {
		t.Fatalf("unexpected health response %d %s", resp.StatusCode, body)
	}
}

func TestNewOutsideDevRequiresBackends(t *testing.T) {
	cfg := config.Config{AppName: "bondify-test", AppEnv: "production"}
	if _, err := New(cfg, nil, nil, nil, logging.Discard()); err == nil {
		t.Fatalf("expected missing backend error")
	}
}
