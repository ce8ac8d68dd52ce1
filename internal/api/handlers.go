package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/threatscore/internal/engine"
	"github.com/rawblock/threatscore/pkg/models"
)

// engineVersion is surfaced on GET /health. Bumped alongside releases.
const engineVersion = "dev"

// Handler holds everything the HTTP surface needs: the engine and the live
// decision-stream hub. Engine errors are mapped to status codes by
// writeEngineError.
type Handler struct {
	Engine *engine.ScoreEngine
	Hub    *Hub
}

// Score handles POST /score.
func (h *Handler) Score(c *gin.Context) {
	var req models.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	d, err := h.Engine.Score(c.Request.Context(), req.Domain, req.URL)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	if d.Action != models.ActionAllow && h.Hub != nil {
		if payload, err := json.Marshal(gin.H{"type": "decision", "decision": d}); err == nil {
			h.Hub.Broadcast(payload)
		}
	}

	c.JSON(http.StatusOK, models.ScoreResponse{
		DecisionID:  d.DecisionID,
		Action:      d.Action,
		Probability: d.Probability,
		Reasons:     d.Reasons,
		LatencyMs:   d.LatencyMs,
	})
}

// Feedback handles POST /feedback.
func (h *Handler) Feedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	applied, err := h.Engine.Feedback(c.Request.Context(), engine.FeedbackInput{
		DecisionID:     req.DecisionID,
		Reward:         *req.Reward,
		ActualThreat:   req.ActualThreat,
		FeedbackSource: req.FeedbackSource,
		Context:        req.Context,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	message := "feedback recorded"
	if !applied {
		message = "feedback recorded for audit; decision was not pending a bandit update"
	}
	c.JSON(http.StatusOK, models.FeedbackResponse{Success: true, Message: message})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   engineVersion,
	})
}

func writeEngineError(c *gin.Context, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		switch engErr.Kind {
		case engine.KindInvalidInput:
			c.JSON(http.StatusBadRequest, gin.H{"error": engErr.Error()})
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
