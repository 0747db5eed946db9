package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daehokim/teambudget/internal/transport/httpapi/handler"
	"github.com/daehokim/teambudget/internal/transport/httpapi/middleware"
)

func newAuthHandler() (*handler.AuthHandler, *middleware.JWTService) {
	jwtService := middleware.NewJWTService("test-secret-key-minimum-32-characters-long")
	return handler.NewAuthHandler(jwtService, "team-shared-key"), jwtService
}

func registerDevice(h *handler.AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/device", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RegisterDevice(rec, req)
	return rec
}

func TestRegisterDevice_IssuesUsableToken(t *testing.T) {
	h, jwtService := newAuthHandler()

	rec := registerDevice(h, `{"memberName":"김대호","teamKey":"team-shared-key"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp handler.RegisterDeviceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	deviceID, err := uuid.Parse(resp.DeviceID)
	require.NoError(t, err)

	claims, err := jwtService.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, deviceID, claims.DeviceID)
	assert.Equal(t, "김대호", claims.MemberName)
}

func TestRegisterDevice_RejectsWrongTeamKey(t *testing.T) {
	h, _ := newAuthHandler()

	rec := registerDevice(h, `{"memberName":"김대호","teamKey":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterDevice_RequiresMemberName(t *testing.T) {
	h, _ := newAuthHandler()

	rec := registerDevice(h, `{"teamKey":"team-shared-key"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDevice_RejectsMalformedBody(t *testing.T) {
	h, _ := newAuthHandler()

	rec := registerDevice(h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
