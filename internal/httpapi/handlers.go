package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/disposition"
	"dialer-platform/internal/pending"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth         *auth.Manager
	Runs         *dialer.Controller
	Dispositions *disposition.Service
	Reports      *reporting.Service
	Provider     telephony.CallProvider
	Registry     *pending.Registry
	ManualLines  ManualLineLimiter
	Log          *slog.Logger

	WebhookURL string
}

func (h Handlers) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Dialer runs ---

func (h Handlers) CreateRun(c *gin.Context) {
	var req dialer.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OwnerUserID == "" {
		req.OwnerUserID, _ = auth.UserID(c.Request.Context())
	}
	run, err := h.Runs.CreateRun(c.Request.Context(), req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (h Handlers) GetRun(c *gin.Context) {
	run, err := h.Runs.Get(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		h.respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type startRunRequest struct {
	Force bool `json:"force"`
}

func (h Handlers) StartRun(c *gin.Context) {
	var req startRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	run, err := h.Runs.Start(c.Request.Context(), c.Param("run_id"), req.Force)
	if err != nil {
		h.respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type controlRunRequest struct {
	Action string `json:"action"`
}

// ControlRun handles pause/resume/stop for a run.
func (h Handlers) ControlRun(c *gin.Context) {
	var req controlRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	runID := c.Param("run_id")
	var (
		run dialer.Run
		err error
	)
	switch req.Action {
	case "pause":
		run, err = h.Runs.Pause(c.Request.Context(), runID)
	case "resume":
		run, err = h.Runs.Resume(c.Request.Context(), runID)
	case "stop":
		run, err = h.Runs.Stop(c.Request.Context(), runID)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "action must be pause, resume or stop"})
		return
	}
	if err != nil {
		h.respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h Handlers) RunSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	summary, err := h.Reports.RunSummary(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		h.respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// respondRunError maps controller errors onto HTTP statuses. Invalid
// transitions and run conflicts both surface as 409 with enough detail for
// the caller to decide what to do next.
func (h Handlers) respondRunError(c *gin.Context, err error) {
	var invalid *dialer.InvalidTransitionError
	var conflict *dialer.ConflictError
	switch {
	case errors.Is(err, dialer.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case errors.As(err, &invalid):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":          err.Error(),
			"current_status": string(invalid.From),
		})
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":           err.Error(),
			"blocking_run_id": conflict.BlockingRunID,
		})
	case errors.Is(err, dialer.ErrNoContactsRemaining), errors.Is(err, dialer.ErrNoCallerIDs):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log().Error("run request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Manual click-to-call ---

type manualDialRequest struct {
	From string `json:"from"`
	To   string `json:"to"`

	ContactID string `json:"contact_id,omitempty"`
}

// ManualDial originates a single click-to-call leg for the agent. AMD stays
// off; the agent is already listening.
func (h Handlers) ManualDial(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	var req manualDialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.From == "" || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from, to required"})
		return
	}

	if h.ManualLines != nil {
		ok, err := h.ManualLines.Acquire(c.Request.Context(), userID)
		if err != nil {
			h.log().Error("manual line acquire failed", "user_id", userID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "concurrent call limit reached"})
			return
		}
	}

	res, err := h.Provider.Originate(c.Request.Context(), telephony.OriginateRequest{
		From:       req.From,
		To:         req.To,
		WebhookURL: h.WebhookURL,
		AMD:        telephony.AMDConfig{Enabled: false},
		ClientState: telephony.ClientState{
			CallType:  telephony.CallTypeManual,
			ContactID: req.ContactID,
			UserID:    userID,
			From:      req.From,
			To:        req.To,
		},
	})
	if err != nil {
		if h.ManualLines != nil {
			if relErr := h.ManualLines.Release(c.Request.Context(), userID); relErr != nil {
				h.log().Warn("manual line release failed", "user_id", userID, "err", relErr)
			}
		}
		h.log().Warn("manual originate failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call origination failed"})
		return
	}

	h.Registry.Register(pending.Call{
		SessionID: res.SessionID,
		ContactID: req.ContactID,
		UserID:    userID,
		From:      req.From,
		To:        req.To,
	})
	c.JSON(http.StatusOK, gin.H{"session_id": res.SessionID})
}

// --- Dispositions ---

func (h Handlers) ApplyDisposition(c *gin.Context) {
	if h.Dispositions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispositions not configured"})
		return
	}
	var req disposition.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.ActorUserID, _ = auth.UserID(c.Request.Context())

	res, err := h.Dispositions.Apply(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, disposition.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "disposition not found"})
		case errors.Is(err, disposition.ErrInactive):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

// Convenience middleware bundles.

func RequireAnyRole(roles ...string) gin.HandlerFunc {
	return rbac.RequireAnyRole(roles...)
}
