package server

import (
	"net/http"
	"time"

	"github.com/Skylto-inc/dealmate-lootpacks/auth"
	"github.com/Skylto-inc/dealmate-lootpacks/pkg/drops"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PackHandler exposes the lootpack HTTP API.
type PackHandler struct {
	service     *PackService
	broadcaster *drops.Broadcaster
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
}

// NewPackHandler creates the lootpack handler.
func NewPackHandler(service *PackService, broadcaster *drops.Broadcaster, logger zerolog.Logger) *PackHandler {
	return &PackHandler{
		service:     service,
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "pack_handler").Logger(),
	}
}

// ListPacks handles GET /api/lootpacks
func (h *PackHandler) ListPacks(c *gin.Context) {
	packs, err := h.service.ListPacks(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, packs)
}

// GetStats handles GET /api/lootpacks/stats
func (h *PackHandler) GetStats(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "User not authenticated")
		return
	}

	stats, err := h.service.GetStats(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, stats)
}

// OpenPack handles POST /api/lootpacks/:id/open
func (h *PackHandler) OpenPack(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "User not authenticated")
		return
	}

	packTypeID := c.Param("id")
	if packTypeID == "" {
		ErrorWithMessage(c, http.StatusBadRequest, "Pack type id is required")
		return
	}

	resp, err := h.service.OpenPack(c.Request.Context(), userID, packTypeID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("pack_type_id", packTypeID).
		Int("rewards", len(resp.Rewards)).
		Msg("Pack opened")

	OK(c, resp)
}

// GetInventory handles GET /api/lootpacks/rewards
func (h *PackHandler) GetInventory(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "User not authenticated")
		return
	}

	inventory, err := h.service.GetInventory(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, inventory)
}

// CompleteAd handles POST /api/ads/complete
func (h *PackHandler) CompleteAd(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.service.RecordAdCompletion(c.Request.Context(), userID); err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, gin.H{"recorded": true})
}

// StreamDrops handles GET /api/lootpacks/drops/stream. It upgrades to a
// WebSocket and pushes rare drop announcements until the client disconnects.
func (h *PackHandler) StreamDrops(c *gin.Context) {
	if h.broadcaster == nil {
		ErrorWithMessage(c, http.StatusServiceUnavailable, "Drop stream is not configured")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close() //nolint:errcheck

	writeDeadline := 10 * time.Second
	done := make(chan struct{})

	// Detect connection close
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(10 * time.Minute)) //nolint:errcheck
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket connection closed unexpectedly")
			} else {
				h.logger.Debug().Err(err).Msg("WebSocket closed normally")
			}
		}
	}()

	// Send ping to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	feed, cancel := h.broadcaster.Listen(c.Request.Context())
	defer cancel()

	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				h.logger.Debug().Err(err).Msg("Failed to send ping")
				return
			}
		case drop, ok := <-feed:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline)) //nolint:errcheck
			if err := conn.WriteJSON(drop); err != nil {
				h.logger.Debug().Err(err).Msg("Failed to write drop")
				return
			}
		}
	}
}
