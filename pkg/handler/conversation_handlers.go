// HTTP handlers for conversation management
package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/relaydeck/relaydeck/pkg/models"
	"github.com/relaydeck/relaydeck/pkg/service"
)

// CreateConversation handles POST /api/conversations. An empty body is fine:
// the title defaults.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.chatService.CreateConversation(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// ListConversations handles GET /api/conversations.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	resp, err := h.chatService.ListConversations(c.Request.Context(),
		c.Query("status"), parseIntQuery(c, "limit"), parseIntQuery(c, "offset"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetConversation handles GET /api/conversations/:id.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.chatService.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondConversationError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// UpdateConversation handles PATCH /api/conversations/:id.
func (h *ChatHandler) UpdateConversation(c *gin.Context) {
	var req models.UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.chatService.UpdateConversation(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondConversationError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// DeleteConversation handles DELETE /api/conversations/:id.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.chatService.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondConversationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// ListMessages handles GET /api/conversations/:id/messages with ?after= as an
// exclusive message-id cursor.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	resp, err := h.chatService.ListMessages(c.Request.Context(), c.Param("id"),
		parseUintQuery(c, "after"), parseIntQuery(c, "limit"))
	if err != nil {
		respondConversationError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func respondConversationError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
