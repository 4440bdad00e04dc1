//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uvian-worker/internal/domain/model"
)

func newTestServer(t *testing.T, checks ...ReadinessCheck) (*Server, *mockJobUseCase, string) {
	t.Helper()
	uc := newMockJobUseCase()
	auth := NewAuthManager("test-secret", time.Hour)
	tok, err := auth.Mint("ops")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return NewServer(uc, auth, checks, nopLogger()), uc, tok
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestReady(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		s, _, _ := newTestServer(t, ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }})
		rr := httptest.NewRecorder()
		s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	})

	t.Run("failing check", func(t *testing.T) {
		s, _, _ := newTestServer(t,
			ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }},
			ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
		)
		rr := httptest.NewRecorder()
		s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rr.Code)
		}
		var body struct {
			Failed map[string]string `json:"failed"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Failed["redis"] != "down" || len(body.Failed) != 1 {
			t.Errorf("failed = %v", body.Failed)
		}
	})
}

func TestJobsAPI_Auth(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Routes()

	cases := map[string]string{
		"missing header": "",
		"bad scheme":     "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
	}
	for name, hdr := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/x", nil)
			if hdr != "" {
				req.Header.Set("Authorization", hdr)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
		})
	}

	t.Run("token from another secret", func(t *testing.T) {
		other, _ := NewAuthManager("other", time.Hour).Mint("ops")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/x", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})
}

func TestJobsAPI_SubmitAndGet(t *testing.T) {
	s, uc, tok := newTestServer(t)
	h := s.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"type":"chat","input":{"conversationId":"c1"}}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body=%s", rr.Code, rr.Body.String())
	}
	var created model.Job
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Status != model.JobStatusQueued {
		t.Fatalf("created = %+v", created)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rr.Code)
		}
	})

	t.Run("missing type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"input":{}}`))
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("bad body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{`))
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		uc.SubmitErr = errors.New("redis down")
		defer func() { uc.SubmitErr = nil }()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"type":"chat"}`))
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rr.Code)
		}
	})
}

func TestAuthManager_Expiry(t *testing.T) {
	a := NewAuthManager("s", time.Minute)
	base := time.Now()
	a.now = func() time.Time { return base }
	tok, err := a.Mint("")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := a.parse(tok); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
	a.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := a.parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestRecover(t *testing.T) {
	h := Recover(nopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}
