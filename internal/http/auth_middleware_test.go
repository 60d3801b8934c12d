package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"auth-api/internal/service"
)

func setupProtectedRoute(tokenSvc *service.TokenService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", AuthRequired(tokenSvc), func(c *gin.Context) {
		userID, ok := GetAuthUserID(c)
		if !ok || userID == "" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, userID)
	})
	return r
}

func TestAuthRequiredAllowsValidCookie(t *testing.T) {
	tokenSvc := service.NewTokenService("secret", service.SessionTTL)
	token, err := tokenSvc.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	r := setupProtectedRoute(tokenSvc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "u1" {
		t.Fatalf("expected resolved user id u1, got %q", rec.Body.String())
	}
}

func TestAuthRequiredRejectsMissingCookie(t *testing.T) {
	tokenSvc := service.NewTokenService("secret", service.SessionTTL)
	r := setupProtectedRoute(tokenSvc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredRejectsMalformedToken(t *testing.T) {
	tokenSvc := service.NewTokenService("secret", service.SessionTTL)
	r := setupProtectedRoute(tokenSvc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "not-a-jwt"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredRejectsExpiredToken(t *testing.T) {
	tokenSvc := service.NewTokenService("secret", time.Millisecond)
	token, err := tokenSvc.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	r := setupProtectedRoute(tokenSvc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredRejectsTokenSignedWithOtherSecret(t *testing.T) {
	otherSvc := service.NewTokenService("other-secret", service.SessionTTL)
	token, err := otherSvc.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	r := setupProtectedRoute(service.NewTokenService("secret", service.SessionTTL))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
