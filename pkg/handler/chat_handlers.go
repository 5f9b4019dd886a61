// HTTP handlers for chat turns and live run control
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/relaydeck/relaydeck/pkg/models"
	"github.com/relaydeck/relaydeck/pkg/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat handles POST /api/chat. Streaming requests relay the backend bytes
// verbatim; non-streaming requests return the full text as JSON.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Stream {
		h.streamChat(c, &req)
		return
	}

	resp, err := h.chatService.Chat(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// streamChat relays a live run to the client. The run is started off the
// request context: when the client goes away only the relay stops, the run
// and its persistence keep going.
func (h *ChatHandler) streamChat(c *gin.Context, req *models.ChatRequest) {
	rs, err := h.chatService.ChatStream(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer rs.CloseClient()

	copyStreamHeaders(c.Writer.Header(), rs.Header)
	if c.Writer.Header().Get("Content-Type") == "" {
		c.Writer.Header().Set("Content-Type", rs.ContentType)
	}
	c.Writer.Header().Set("X-Conversation-Id", rs.ConversationID)
	c.Writer.Header().Set("X-Run-Token", rs.RunToken)
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// Detach the relay as soon as the client hangs up.
	done := c.Request.Context().Done()
	go func() {
		<-done
		rs.CloseClient()
	}()

	flusher, _ := c.Writer.(http.Flusher)
	for {
		// Stream failures are logged by the run itself; the relay just ends.
		chunk, err := rs.Next()
		if err != nil {
			return
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// hop-by-hop and length headers must not be forwarded on a re-chunked stream
var skipStreamHeaders = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Content-Length":    {},
	"Upgrade":           {},
}

func copyStreamHeaders(dst, src http.Header) {
	for k, vals := range src {
		if _, skip := skipStreamHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

// CancelRun handles POST /api/conversations/:id/cancel.
func (h *ChatHandler) CancelRun(c *gin.Context) {
	id := c.Param("id")
	cancelled := h.chatService.CancelRun(id)
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "cancelled": cancelled})
}

// RunStatus handles GET /api/conversations/:id/run.
func (h *ChatHandler) RunStatus(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, models.RunStatusResponse{
		ConversationID: id,
		IsRunning:      h.chatService.IsRunning(id),
	})
}

func parseUintQuery(c *gin.Context, key string) uint64 {
	v, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseIntQuery(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
