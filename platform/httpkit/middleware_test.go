package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testJWTConfig struct {
	secret string
}

func (c testJWTConfig) GetJWTAccessSecret() string { return c.secret }

func signAccessToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestUserIDExtraction(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := UserID(c); ok {
		t.Fatal("UserID on an empty context should report absence")
	}

	c.Set(ContextUserIDKey, "not-a-uuid")
	if _, ok := UserID(c); ok {
		t.Fatal("UserID should reject a value of the wrong type")
	}

	want := uuid.New()
	c.Set(ContextUserIDKey, want)
	got, ok := UserID(c)
	if !ok || got != want {
		t.Fatalf("UserID = %s, %v; want %s, true", got, ok, want)
	}
}

func TestAuthRequiredSetsUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testJWTConfig{secret: "test-secret"}
	userID := uuid.New()

	engine := gin.New()
	var seen uuid.UUID
	var seenOK bool
	engine.GET("/protected", AuthRequired(cfg), func(c *gin.Context) {
		seen, seenOK = UserID(c)
		c.Status(http.StatusOK)
	})

	token := signAccessToken(t, cfg.secret, jwt.MapClaims{
		"sub":  userID.String(),
		"type": "access",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !seenOK || seen != userID {
		t.Fatalf("handler saw user %s, %v; want %s", seen, seenOK, userID)
	}
}

func TestAuthRequiredRejectsBadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testJWTConfig{secret: "test-secret"}

	engine := gin.New()
	engine.GET("/protected", AuthRequired(cfg), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "Bearer not.a.token"},
		{"wrong type", "Bearer " + signAccessToken(t, cfg.secret, jwt.MapClaims{
			"sub":  uuid.New().String(),
			"type": "refresh",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})},
		{"wrong secret", "Bearer " + signAccessToken(t, "other-secret", jwt.MapClaims{
			"sub":  uuid.New().String(),
			"type": "access",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", tc.token)
		}
		engine.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, http.StatusUnauthorized)
		}
	}
}
