package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"connwatch/internal/monitor"
)

func (s *Server) handleHealthz(c *gin.Context) {
	services := gin.H{}

	if s.store != nil {
		services["database"] = "ok"
	} else {
		services["database"] = "unavailable"
	}
	if s.snapshots != nil {
		if err := s.snapshots.HealthCheck(c.Request.Context()); err != nil {
			services["cache"] = "error"
		} else {
			services["cache"] = "ok"
		}
	} else {
		services["cache"] = "unavailable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"time":     time.Now().UTC(),
		"services": services,
	})
}

func (s *Server) handleHealthSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetHealthSummary())
}

func (s *Server) handleListConnectors(c *gin.Context) {
	connectors := s.engine.ListConnectors()
	c.JSON(http.StatusOK, gin.H{
		"connectors": connectors,
		"count":      len(connectors),
	})
}

func (s *Server) handleGetConnector(c *gin.Context) {
	status, err := s.engine.GetConnectorStatus(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleConnectorCalls(c *gin.Context) {
	if s.store == nil {
		errorResponse(c, http.StatusServiceUnavailable, "call history requires database storage")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := s.store.RecentCallLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calls": logs,
		"count": len(logs),
	})
}

func (s *Server) handleGetScorecard(c *gin.Context) {
	period := monitor.ScorecardPeriod(c.DefaultQuery("period", string(monitor.Period24h)))

	card, err := s.engine.GetScorecard(c.Param("id"), period)
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.UpsertScorecard(c.Request.Context(), card); err != nil {
			s.log.Error("failed to persist scorecard",
				"source_id", card.SourceID, "error", err.Error())
		}
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	filter := monitor.AlertFilter{
		Level:    monitor.AlertLevel(c.Query("level")),
		SourceID: c.Query("source_id"),
	}
	if c.Query("unresolved") == "true" {
		filter.Unresolved = true
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}

	alerts := s.engine.ListAlerts(filter)
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleGetAlertRules(c *gin.Context) {
	rules := s.engine.AlertRules()
	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) handleRegisterConnector(c *gin.Context) {
	var req monitor.ConnectorConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.engine.RegisterConnector(req); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registered": req.Identity.ConnectorID})
}

func (s *Server) handleRecordCall(c *gin.Context) {
	var outcome monitor.CallOutcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if outcome.ConnectorID == "" {
		errorResponse(c, http.StatusBadRequest, "connector_id is required")
		return
	}

	entry := s.engine.RecordCall(outcome)
	c.JSON(http.StatusAccepted, gin.H{"log_id": entry.ID})
}

func (s *Server) handleRecordSample(c *gin.Context) {
	var sample monitor.DataQualityMetric
	if err := c.ShouldBindJSON(&sample); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if sample.SourceID == "" {
		errorResponse(c, http.StatusBadRequest, "source_id is required")
		return
	}

	s.engine.RecordSample(sample)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	who := c.GetString("user")
	var body struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if err := c.ShouldBindJSON(&body); err == nil && body.AcknowledgedBy != "" {
		who = body.AcknowledgedBy
	}

	alertID := c.Param("id")
	if err := s.engine.AcknowledgeAlert(alertID, who); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.MarkAlertAcknowledged(c.Request.Context(), alertID, who, time.Now()); err != nil {
			s.log.Error("failed to persist acknowledgment", "alert_id", alertID, "error", err.Error())
		}
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": alertID})
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	alertID := c.Param("id")
	if err := s.engine.ResolveAlert(alertID); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.MarkAlertResolved(c.Request.Context(), alertID, time.Now()); err != nil {
			s.log.Error("failed to persist resolution", "alert_id", alertID, "error", err.Error())
		}
	}
	c.JSON(http.StatusOK, gin.H{"resolved": alertID})
}

func (s *Server) handleUpdateAlertRules(c *gin.Context) {
	var body struct {
		Rules []monitor.AlertRule `json:"rules"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.engine.UpdateAlertRules(body.Rules); err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(body.Rules)})
}
