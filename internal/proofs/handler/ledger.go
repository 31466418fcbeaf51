package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/ledger"
)

// LedgerHandler exposes read-only HTTP endpoints for the account ledger.
type LedgerHandler struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(store ledger.Store, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{store: store, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/accounts/:id", h.GetAccount)
	}
}

// Overview handles GET /ledger and returns the account count and chain root.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.store.Len(ctx)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	root, err := h.store.Root(ctx)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	SetAccountsGauge(float64(count))

	c.JSON(http.StatusOK, gin.H{
		"accounts": count,
		"root":     root,
	})
}

// Verify handles GET /ledger/verify and walks the full chain.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.store.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetAccount handles GET /ledger/accounts/:id and returns the raw account.
func (h *LedgerHandler) GetAccount(c *gin.Context) {
	id, err := identity.ParsePublicKey(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	acct, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}
