package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/good-yellow-bee/blazereport/internal/render"
)

type staticChecker struct {
	name string
	err  error
}

func (c staticChecker) Name() string                    { return c.name }
func (c staticChecker) Check(ctx context.Context) error { return c.err }

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
	}{
		{"no checkers", nil, http.StatusOK, "ready"},
		{"all ok", []Checker{staticChecker{name: "a"}}, http.StatusOK, "ready"},
		{"one failing", []Checker{staticChecker{name: "a"}, staticChecker{name: "b", err: errors.New("down")}}, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for _, c := range tt.checkers {
				h.RegisterChecker(c)
			}
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest("GET", "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantBody)
			}
			if len(tt.checkers) == 2 && resp.Checks["b"] != "down" {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}

func TestHealthAndLive(t *testing.T) {
	h := NewHandler()
	for path, fn := range map[string]http.HandlerFunc{"/health": h.Health, "/health/live": h.Live} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestUpstreamChecker(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"unauthorized is reachable", http.StatusUnauthorized, false},
		{"ok", http.StatusOK, false},
		{"server error", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s, want HEAD", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewUpstreamChecker(srv.URL, srv.Client()).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRendererChecker(t *testing.T) {
	c := NewRendererChecker(render.NewPDFRenderer(render.PDFOptions{}))
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v", err)
	}
	if err := NewRendererChecker(nil).Check(context.Background()); err == nil {
		t.Error("Check() with nil renderer succeeded")
	}
}
