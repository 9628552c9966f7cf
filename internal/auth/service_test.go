package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewService([]byte("secret"), nil)

	token, expiresAt, err := svc.GenerateToken("u1", "admin")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	userID, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestValidateRejectsExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService([]byte("secret"), clock)

	token, _, err := svc.GenerateToken("u1", "")
	require.NoError(t, err)

	clock.Advance(DefaultTokenTTL + time.Minute)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSetTTL(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService([]byte("secret"), clockwork.NewFakeClockAt(start))

	svc.SetTTL(0)
	_, expiresAt, err := svc.GenerateToken("u1", "")
	require.NoError(t, err)
	assert.Equal(t, start.Add(DefaultTokenTTL), expiresAt)

	svc.SetTTL(time.Hour)
	_, expiresAt, err = svc.GenerateToken("u1", "")
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), expiresAt)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, _, err := NewService([]byte("one"), nil).GenerateToken("u1", "")
	require.NoError(t, err)

	_, err = NewService([]byte("two"), nil).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewService([]byte("secret"), nil).ValidateToken(raw)
	assert.Error(t, err)
}

func TestGenerateRequiresUserID(t *testing.T) {
	_, _, err := NewService([]byte("secret"), nil).GenerateToken("", "")
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService([]byte("secret"), nil)

	r := gin.New()
	r.GET("/me", svc.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "role": c.GetString("user_role")})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := svc.GenerateToken("u1", "user")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
}
