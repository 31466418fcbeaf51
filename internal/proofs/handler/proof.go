package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/merkle"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// StoreProofRequest is the body of POST /proofs. Commitment is hex of any
// length; the service normalises it to 32 bytes.
type StoreProofRequest struct {
	RecordID   identity.PublicKey `json:"record_id"`
	Commitment string             `json:"commitment" binding:"required"`
}

// QueryRequest is the body of POST /accounts/query.
type QueryRequest struct {
	Size   int    `json:"size"`
	Offset int    `json:"offset"`
	Value  string `json:"value"`
}

// VerifyRequest is the body of POST /proofs/verify.
type VerifyRequest struct {
	Root  merkle.Hash   `json:"root"`
	Types []string      `json:"types"`
	Value []string      `json:"value" binding:"required"`
	Proof []merkle.Hash `json:"proof"`
}

// ProofHandler handles HTTP requests for proof records.
type ProofHandler struct {
	svc    *service.ProofService
	logger *zap.Logger
}

// NewProofHandler creates a new ProofHandler.
func NewProofHandler(svc *service.ProofService, logger *zap.Logger) *ProofHandler {
	return &ProofHandler{svc: svc, logger: logger}
}

// Register mounts the proof routes on the given router group.
func (h *ProofHandler) Register(rg *gin.RouterGroup) {
	proofs := rg.Group("/proofs")
	{
		proofs.POST("", identity.RequireSigner(), identity.OptionalAdmin(), h.StoreProof)
		proofs.GET("", h.FindByCommitment)
		proofs.POST("/verify", h.Verify)
		proofs.GET("/:id", h.GetProof)
	}
	rg.POST("/accounts/query", h.QueryAccounts)
}

// StoreProof handles POST /proofs.
func (h *ProofHandler) StoreProof(c *gin.Context) {
	var req StoreProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	raw, err := model.DecodeHex(req.Commitment)
	if err != nil {
		badRequest(c, "commitment: "+err.Error())
		return
	}
	signer, _ := identity.SignerFromCtx(c)

	receipt, err := h.svc.StoreProof(c.Request.Context(), service.StoreProofRequest{
		RecordID:   req.RecordID,
		Submitter:  signer,
		Admin:      identity.AdminFromCtx(c),
		Commitment: raw,
	})
	if err != nil {
		_, code := classify(err)
		RecordRejection("proof", code)
		writeError(c, h.logger, err)
		return
	}
	RecordWrite("proof")
	c.JSON(http.StatusCreated, receipt)
}

// FindByCommitment handles GET /proofs?commitment=<hex>.
func (h *ProofHandler) FindByCommitment(c *gin.Context) {
	q := c.Query("commitment")
	if q == "" {
		badRequest(c, "commitment query parameter is required")
		return
	}
	value, err := model.DecodeHex(q)
	if err != nil {
		badRequest(c, "commitment: "+err.Error())
		return
	}
	proofs, err := h.svc.FindByCommitment(c.Request.Context(), value)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proofs": proofs, "count": len(proofs)})
}

// GetProof handles GET /proofs/:id.
func (h *ProofHandler) GetProof(c *gin.Context) {
	id, err := identity.ParsePublicKey(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Verify handles POST /proofs/verify.
func (h *ProofHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.Types) == 0 {
		req.Types = []string{"string"}
	}
	res, err := h.svc.VerifyInclusion(c.Request.Context(), service.VerifyRequest{
		Root:  req.Root,
		Types: req.Types,
		Value: req.Value,
		Proof: req.Proof,
	})
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

// QueryAccounts handles POST /accounts/query, the raw size plus byte-range
// lookup. Matching accounts are returned undecoded.
func (h *ProofHandler) QueryAccounts(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var value []byte
	if req.Value != "" {
		v, err := model.DecodeHex(req.Value)
		if err != nil {
			badRequest(c, "value: "+err.Error())
			return
		}
		value = v
	}
	accts, err := h.svc.QueryRecords(c.Request.Context(), service.Query{
		Size: req.Size, Offset: req.Offset, Value: value,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accts, "count": len(accts)})
}
