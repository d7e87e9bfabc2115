// Package api exposes batch submission and read-only ledger queries over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/archive"
	"github.com/0gfoundation/0g-emissions/internal/auth"
	"github.com/0gfoundation/0g-emissions/internal/emissions"
	"github.com/0gfoundation/0g-emissions/internal/issuer"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
	"github.com/0gfoundation/0g-emissions/internal/ticket"
	"github.com/0gfoundation/0g-emissions/internal/token"
)

// ActionIssueTicket is the signed-request action accepted by POST /tickets.
const ActionIssueTicket = "issue_ticket"

// BatchExecutor is satisfied by *runtime.Executor.
type BatchExecutor interface {
	Execute(ctx context.Context, b *runtime.Batch) (*runtime.Receipt, error)
}

// TicketIssuer is satisfied by *issuer.Issuer.
type TicketIssuer interface {
	Issue(ctx context.Context, beneficiary address.Address, amount uint64) (*ticket.Ticket, error)
}

// HistoryLister is satisfied by *archive.Store.
type HistoryLister interface {
	ListByBeneficiary(ctx context.Context, beneficiary address.Address, limit int) ([]archive.Redemption, error)
}

// Handler wires up the API routes onto a Gin router group.
type Handler struct {
	exec    BatchExecutor
	store   *ledger.Store
	program address.Address
	issuer  TicketIssuer
	authMW  gin.HandlerFunc
	history HistoryLister
	log     *zap.Logger
}

func NewHandler(exec BatchExecutor, store *ledger.Store, program address.Address, log *zap.Logger) *Handler {
	return &Handler{exec: exec, store: store, program: program, log: log}
}

// WithIssuer enables POST /tickets behind authMW.
func (h *Handler) WithIssuer(iss TicketIssuer, authMW gin.HandlerFunc) *Handler {
	h.issuer = iss
	h.authMW = authMW
	return h
}

// WithHistory enables GET /history/:beneficiary.
func (h *Handler) WithHistory(l HistoryLister) *Handler {
	h.history = l
	return h
}

// Register mounts all routes. Optional routes are only mounted when their
// backing service was configured.
func (h *Handler) Register(rg *gin.RouterGroup) {
	// ── Batches ────────────────────────────────────────────────────────────
	rg.POST("/batches", h.handleSubmit)

	// ── Ledger reads ───────────────────────────────────────────────────────
	rg.GET("/config", h.handleConfig)
	rg.GET("/redemptions/:beneficiary/:nonce", h.handleRedemption)
	rg.GET("/balances/:owner", h.handleBalance)

	// ── Issuer (operator only) ─────────────────────────────────────────────
	if h.issuer != nil {
		rg.POST("/tickets", h.authMW, h.handleIssue)
	}

	// ── Archive ────────────────────────────────────────────────────────────
	if h.history != nil {
		rg.GET("/history/:beneficiary", h.handleHistory)
	}
}

// ── Submit ─────────────────────────────────────────────────────────────────

func (h *Handler) handleSubmit(c *gin.Context) {
	var b runtime.Batch
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch body"})
		return
	}

	receipt, err := h.exec.Execute(c.Request.Context(), &b)
	if err != nil {
		h.writeBatchError(c, &b, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// writeBatchError maps an Execute error onto a status code:
//
//	program error code       → 422 with "code"
//	other instruction error  → 422
//	malformed batch          → 400
//	exhausted WATCH retries  → 409
//	anything else            → 500
func (h *Handler) writeBatchError(c *gin.Context, b *runtime.Batch, err error) {
	var code emissions.ErrorCode
	var ixErr *runtime.InstructionError
	switch {
	case errors.As(err, &code):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": code.Error(),
			"code":  uint32(code),
			"name":  code.String(),
		})
	case errors.Is(err, runtime.ErrUnknownProgram), isValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "ledger busy, retry"})
	case errors.As(err, &ixErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.log.Error("execute batch", zap.String("batch", b.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		runtime.ErrEmptyBatch,
		runtime.ErrBatchTooLarge,
		runtime.ErrMissingBatchID,
		runtime.ErrSignatureMismatch,
		runtime.ErrDuplicateSigner,
		runtime.ErrBadBatchSignature,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ── Reads ──────────────────────────────────────────────────────────────────

type configResponse struct {
	ProgramID address.Address `json:"program_id"`
	*emissions.Config
}

func (h *Handler) handleConfig(c *gin.Context) {
	cfg, ok := h.loadConfig(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, configResponse{ProgramID: h.program, Config: cfg})
}

func (h *Handler) handleRedemption(c *gin.Context) {
	beneficiary, err := address.ParseHex(c.Param("beneficiary"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid beneficiary"})
		return
	}
	nonce, err := strconv.ParseUint(c.Param("nonce"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nonce"})
		return
	}

	rec, err := emissions.LoadRecord(c.Request.Context(), h.store, h.program, beneficiary, nonce)
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not redeemed"})
		return
	}
	if err != nil {
		h.log.Error("load redemption record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) handleBalance(c *gin.Context) {
	owner, err := address.ParseHex(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner"})
		return
	}
	cfg, ok := h.loadConfig(c)
	if !ok {
		return
	}

	amount, err := token.BalanceOf(c.Request.Context(), h.store, cfg.TokenMint, owner)
	if err != nil {
		h.log.Error("load balance", zap.String("owner", owner.Hex()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owner":  owner,
		"mint":   cfg.TokenMint,
		"amount": amount,
	})
}

func (h *Handler) loadConfig(c *gin.Context) (*emissions.Config, bool) {
	cfg, err := emissions.LoadConfig(c.Request.Context(), h.store, h.program)
	if errors.Is(err, emissions.ErrConfigNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": emissions.ErrConfigNotFound.Error(),
			"code":  uint32(emissions.ErrConfigNotFound),
		})
		return nil, false
	}
	if err != nil {
		h.log.Error("load config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	return cfg, true
}

// ── Issue ──────────────────────────────────────────────────────────────────

type issueRequest struct {
	Beneficiary address.Address `json:"beneficiary"`
	Amount      uint64          `json:"amount"`
}

func (h *Handler) handleIssue(c *gin.Context) {
	req, ok := c.Get(auth.RequestKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	signed := req.(auth.SignedRequest)
	if signed.Action != ActionIssueTicket {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unexpected action " + signed.Action})
		return
	}

	var body issueRequest
	if err := json.Unmarshal(signed.Payload, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if body.Beneficiary.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "beneficiary is required"})
		return
	}

	t, err := h.issuer.Issue(c.Request.Context(), body.Beneficiary, body.Amount)
	if errors.Is(err, issuer.ErrZeroAmount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("issue ticket", zap.String("beneficiary", body.Beneficiary.Hex()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.log.Info("ticket issued via api",
		zap.String("operator", c.MustGet(auth.ContextKey).(address.Address).Hex()),
		zap.String("beneficiary", t.Beneficiary.Hex()),
		zap.Uint64("nonce", t.Nonce),
	)
	c.JSON(http.StatusOK, t)
}

// ── History ────────────────────────────────────────────────────────────────

func (h *Handler) handleHistory(c *gin.Context) {
	beneficiary, err := address.ParseHex(c.Param("beneficiary"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid beneficiary"})
		return
	}
	limit := archive.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	rows, err := h.history.ListByBeneficiary(c.Request.Context(), beneficiary, limit)
	if err != nil {
		h.log.Error("list history", zap.String("beneficiary", beneficiary.Hex()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if rows == nil {
		rows = []archive.Redemption{}
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": rows})
}
