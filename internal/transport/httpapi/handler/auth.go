package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/daehokim/teambudget/internal/transport/httpapi/middleware"
)

// AuthHandler issues device tokens. A shared team key gates enrollment; once
// enrolled, a device authenticates every API call with its token.
type AuthHandler struct {
	jwtService *middleware.JWTService
	teamKey    string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtService *middleware.JWTService, teamKey string) *AuthHandler {
	return &AuthHandler{jwtService: jwtService, teamKey: teamKey}
}

// RegisterDeviceRequest is the device enrollment request
type RegisterDeviceRequest struct {
	MemberName string `json:"memberName"`
	TeamKey    string `json:"teamKey"`
}

// RegisterDeviceResponse is the device enrollment response
type RegisterDeviceResponse struct {
	DeviceID string `json:"deviceId"`
	Token    string `json:"token"`
}

// RegisterDevice handles POST /api/v1/auth/device
func (h *AuthHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MemberName == "" {
		respondWithError(w, http.StatusBadRequest, "memberName is required")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.TeamKey), []byte(h.teamKey)) != 1 {
		respondWithError(w, http.StatusUnauthorized, "invalid team key")
		return
	}

	deviceID := uuid.New()
	token, err := h.jwtService.GenerateToken(deviceID, req.MemberName)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusCreated, RegisterDeviceResponse{
		DeviceID: deviceID.String(),
		Token:    token,
	})
}
