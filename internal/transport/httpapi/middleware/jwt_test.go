package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daehokim/teambudget/internal/transport/httpapi/middleware"
)

func TestJWTService_GenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key-minimum-32-characters-long-for-security"
	jwtService := middleware.NewJWTService(secret)

	deviceID := uuid.New()
	memberName := "김대호"

	t.Run("generate valid token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(deviceID, memberName)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Contains(t, token, ".")
	})

	t.Run("validate valid token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(deviceID, memberName)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		require.NotNil(t, claims)

		assert.Equal(t, deviceID, claims.DeviceID)
		assert.Equal(t, memberName, claims.MemberName)
		assert.Equal(t, "teambudget", claims.Issuer)
		assert.True(t, claims.ExpiresAt.After(time.Now()))
	})

	t.Run("reject invalid token", func(t *testing.T) {
		claims, err := jwtService.ValidateToken("invalid.token.here")
		require.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("reject token with wrong secret", func(t *testing.T) {
		token, err := jwtService.GenerateToken(deviceID, memberName)
		require.NoError(t, err)

		wrongService := middleware.NewJWTService("wrong-secret-key-minimum-32-characters-long")
		claims, err := wrongService.ValidateToken(token)
		require.Error(t, err)
		assert.Nil(t, claims)
	})
}

func TestJWTMiddleware(t *testing.T) {
	secret := "test-secret-key-minimum-32-characters-long-for-security"
	jwtService := middleware.NewJWTService(secret)
	deviceID := uuid.New()

	handler := middleware.JWTMiddleware(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice, ok := middleware.GetDeviceIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, deviceID, gotDevice)

		name, ok := middleware.GetMemberNameFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "김대호", name)

		w.WriteHeader(http.StatusOK)
	}))

	t.Run("accepts bearer token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(deviceID, "김대호")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events/sync", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events/sync", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
