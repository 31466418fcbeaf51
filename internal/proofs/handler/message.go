package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	RecordID identity.PublicKey `json:"record_id"`
	Content  string             `json:"content"`
}

// MessageHandler handles HTTP requests for message records.
type MessageHandler struct {
	svc    *service.MessageService
	logger *zap.Logger
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc *service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// Register mounts the message routes on the given router group.
func (h *MessageHandler) Register(rg *gin.RouterGroup) {
	msgs := rg.Group("/messages")
	{
		msgs.POST("", identity.RequireSigner(), h.SendMessage)
		msgs.GET("", h.ListMessages)
		msgs.GET("/:id", h.GetMessage)
	}
}

// SendMessage handles POST /messages.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	author, _ := identity.SignerFromCtx(c)

	receipt, err := h.svc.SendMessage(c.Request.Context(), service.SendMessageRequest{
		RecordID: req.RecordID,
		Author:   author,
		Content:  req.Content,
	})
	if err != nil {
		_, code := classify(err)
		RecordRejection("message", code)
		writeError(c, h.logger, err)
		return
	}
	RecordWrite("message")
	c.JSON(http.StatusCreated, receipt)
}

// ListMessages handles GET /messages, optionally filtered by ?author=.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	var (
		msgs []*model.Message
		err  error
	)
	if a := c.Query("author"); a != "" {
		author, perr := identity.ParsePublicKey(a)
		if perr != nil {
			badRequest(c, "author: "+perr.Error())
			return
		}
		msgs, err = h.svc.ListByAuthor(c.Request.Context(), author)
	} else {
		msgs, err = h.svc.List(c.Request.Context())
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// GetMessage handles GET /messages/:id.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	id, err := identity.ParsePublicKey(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
