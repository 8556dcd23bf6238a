package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"

	"rtchat/internal/realtime"
)

// WebSocket GET /api/ws?token=
//
// Session lifecycle: resolve the token to a user, register the connection,
// persist online presence, rebuild room membership from durable participant
// rows, then block on the read loop. Teardown runs when the transport
// closes or errors; the registry's offline hook leaves rooms and persists
// offline presence when this was the user's last connection.
func (h *Handler) WebSocket(c *websocket.Conn) {
	ctx := context.Background()

	userID, err := h.tokens.Parse(c.Query("token"))
	if err != nil {
		_ = c.Close()
		return
	}
	if _, err := h.store.ActiveUser(ctx, userID); err != nil {
		_ = c.Close()
		return
	}

	client := realtime.NewClient(userID, c)
	h.registry.Register(userID, client)

	if err := h.store.SetPresence(ctx, userID, true); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("persist online presence")
	}

	conversationIDs, err := h.store.ActiveConversationIDs(ctx, userID)
	if err != nil {
		// Session continues without rooms; the client can reconnect, which
		// rebuilds membership from durable state.
		h.log.Error().Err(err).Str("user_id", userID).Msg("load conversations at connect")
	}
	for _, id := range conversationIDs {
		h.rooms.Join(userID, id)
	}

	h.log.Info().Str("user_id", userID).Int("rooms", len(conversationIDs)).Msg("websocket session started")

	go client.WritePump()
	client.ReadLoop()

	h.registry.Unregister(userID, client)
	h.log.Info().Str("user_id", userID).Msg("websocket session ended")
}
