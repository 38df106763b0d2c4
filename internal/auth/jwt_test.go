package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, issuer, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestValidateToken(t *testing.T) {
	v, err := NewValidator("test-secret", "hookline")
	if err != nil {
		t.Fatalf("NewValidator() error: %v", err)
	}
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name      string
		token     string
		wantOwner string
		wantErr   bool
	}{
		{"valid token", signToken(t, "test-secret", "hookline", "acct_a", future), "acct_a", false},
		{"wrong secret", signToken(t, "other-secret", "hookline", "acct_a", future), "", true},
		{"wrong issuer", signToken(t, "test-secret", "someone-else", "acct_a", future), "", true},
		{"expired", signToken(t, "test-secret", "hookline", "acct_a", time.Now().Add(-time.Hour)), "", true},
		{"missing subject", signToken(t, "test-secret", "hookline", "", future), "", true},
		{"garbage", "not.a.token", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, err := v.ValidateToken(tt.token)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateToken() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateToken() error: %v", err)
			}
			if owner != tt.wantOwner {
				t.Errorf("ValidateToken() owner = %q, want %q", owner, tt.wantOwner)
			}
		})
	}
}

func TestNewValidatorRequiresSecret(t *testing.T) {
	if _, err := NewValidator("", "hookline"); err == nil {
		t.Error("NewValidator() with empty secret error = nil, want error")
	}
}

func TestMiddleware(t *testing.T) {
	v, _ := NewValidator("test-secret", "hookline")
	token := signToken(t, "test-secret", "hookline", "acct_a", time.Now().Add(time.Hour))

	var gotOwner string
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOwner, _ = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
		wantOwner  string
	}{
		{"valid bearer", "/v1/endpoints", "Bearer " + token, http.StatusOK, "acct_a"},
		{"missing header", "/v1/endpoints", "", http.StatusUnauthorized, ""},
		{"not bearer", "/v1/endpoints", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"bad token", "/v1/endpoints", "Bearer junk", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotOwner = ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if gotOwner != tt.wantOwner {
				t.Errorf("owner = %q, want %q", gotOwner, tt.wantOwner)
			}
		})
	}
}
