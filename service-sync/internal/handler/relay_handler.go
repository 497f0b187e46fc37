package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"watch-party-sync/pkg/auth"
	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"
	"watch-party-sync/service-sync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RelayHandler handles HTTP requests for the relay
type RelayHandler struct {
	service    service.RelayService
	jwtManager *auth.JWTManager
	upgrader   websocket.Upgrader
}

// NewRelayHandler creates a new relay handler instance
func NewRelayHandler(service service.RelayService, jwtManager *auth.JWTManager) *RelayHandler {
	return &RelayHandler{
		service:    service,
		jwtManager: jwtManager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// peers are not browsers; tokens gate access
				return true
			},
		},
	}
}

// IssueToken admits a participant into a session by issuing a peer token
func (h *RelayHandler) IssueToken(c *gin.Context) {
	sessionID := c.Param("sessionID")
	if err := service.ValidateSessionID(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	var req transport.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.ParticipantID == "" {
		req.ParticipantID = uuid.NewString()
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(sessionID, req.ParticipantID, req.DisplayName)
	if err != nil {
		logger.Error(err, "failed to generate peer token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, transport.TokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleWebSocket admits a peer with a valid token and relays its frames
func (h *RelayHandler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("sessionID")
	claims, ok := h.authorize(c, sessionID)
	if !ok {
		return
	}

	err := h.service.Admit(c.Request.Context(), sessionID, claims.ParticipantID)
	switch {
	case errors.Is(err, service.ErrSessionFull):
		c.JSON(http.StatusForbidden, gin.H{"error": "Participant limit reached"})
		return
	case err != nil:
		logger.Error(err, "failed to admit peer")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Relay unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error(err, "failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	participant := model.NewParticipant(claims.ParticipantID, claims.DisplayName, time.Now())
	if err := h.service.HandleConnection(context.Background(), sessionID, participant, conn); err != nil {
		logger.Error(err, "failed to handle WebSocket connection")
	}
}

// GetParticipants returns the roster of a session
func (h *RelayHandler) GetParticipants(c *gin.Context) {
	participants, err := h.service.GetParticipants(c.Request.Context(), c.Param("sessionID"))
	if errors.Is(err, service.ErrInvalidSessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}
	if err != nil {
		logger.Error(err, "failed to get session participants")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get participants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participants": participants,
		"count":        len(participants),
	})
}

// EndSession ends a session for everyone. Any participant's token may end it.
func (h *RelayHandler) EndSession(c *gin.Context) {
	sessionID := c.Param("sessionID")
	if _, ok := h.authorize(c, sessionID); !ok {
		return
	}

	if err := h.service.EndSession(c.Request.Context(), sessionID); err != nil {
		logger.Error(err, "failed to end session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// authorize validates the peer token from the query or the Authorization header
func (h *RelayHandler) authorize(c *gin.Context, sessionID string) (*auth.PeerClaims, bool) {
	if err := service.ValidateSessionID(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return nil, false
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return nil, false
	}

	claims, err := h.jwtManager.ValidateToken(token, sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return nil, false
	}
	return claims, true
}
