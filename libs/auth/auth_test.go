package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	token, err := SignHS256("test-secret", "user-1", "biz-1", RoleOwner, time.Hour)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	claims, err := ParseHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseHS256 failed: %v", err)
	}
	if claims.Subject != "user-1" || claims.BusinessID != "biz-1" || claims.Role != RoleOwner {
		t.Fatalf("claims mismatch: got %+v", claims)
	}
	if _, err := ParseHS256(token, "wrong-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseHS256_Expired(t *testing.T) {
	token, err := SignHS256("s", "user-1", "", RoleClient, -time.Minute)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestAuthenticateAndRequire(t *testing.T) {
	var seen Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := Authenticate("s")(Require(RoleOwner)(inner))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous, got %d", rec.Code)
	}

	clientToken, _ := SignHS256("s", "user-2", "", RoleClient, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+clientToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client role, got %d", rec.Code)
	}

	ownerToken, _ := SignHS256("s", "user-1", "biz-1", RoleOwner, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+ownerToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !seen.IsOwnerOf("biz-1") || seen.IsOwnerOf("biz-2") {
		t.Fatalf("unexpected principal %+v", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}
