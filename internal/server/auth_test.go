package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func authorize(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/rag", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestBearerAuth_Disabled(t *testing.T) {
	t.Parallel()

	h := newBearerAuth("").middleware("rag", okHandler)
	if w := authorize(h, ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 with auth disabled, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantReason string
		wantError  string
	}{
		{"exact key", "Bearer shop-secret", http.StatusOK, "", ""},
		{"lowercase scheme", "bearer shop-secret", http.StatusOK, "", ""},
		{"no header", "", http.StatusUnauthorized, authMissing, "authorization required"},
		{"basic scheme", "Basic c2hvcDpzZWNyZXQ=", http.StatusUnauthorized, authMissing, "authorization required"},
		{"wrong key", "Bearer other-secret", http.StatusUnauthorized, authInvalid, "invalid token"},
		{"key prefix", "Bearer shop-sec", http.StatusUnauthorized, authInvalid, "invalid token"},
		{"key with suffix", "Bearer shop-secret2", http.StatusUnauthorized, authInvalid, "invalid token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			auth := newBearerAuth("shop-secret")
			var reasons []string
			auth.onReject = func(route, reason string) {
				if route != "rag" {
					t.Errorf("onReject route = %q", route)
				}
				reasons = append(reasons, reason)
			}

			w := authorize(auth.middleware("rag", okHandler), tc.header)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK {
				if len(reasons) != 0 {
					t.Errorf("onReject called for an accepted request: %v", reasons)
				}
				return
			}

			if len(reasons) != 1 || reasons[0] != tc.wantReason {
				t.Errorf("reasons = %v, want [%s]", reasons, tc.wantReason)
			}
			if !strings.HasPrefix(w.Header().Get("WWW-Authenticate"), "Bearer ") {
				t.Errorf("WWW-Authenticate = %q", w.Header().Get("WWW-Authenticate"))
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q, want JSON", ct)
			}
			var body errorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error != tc.wantError {
				t.Errorf("body = %+v, err = %v", body, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"BEARER abc123", "abc123"},
		{"Bearer  padded ", "padded"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
