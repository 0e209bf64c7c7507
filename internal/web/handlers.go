package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Engine.Status())
}

// handleUpdateConfig merges the posted tunables; unknown keys are dropped by
// the config layer, so arbitrary payloads cannot grow the config file.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	cfg, err := s.deps.Engine.UpdateConfig(fields)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "config": cfg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "config": cfg})
}

func (s *Server) handleAutoMode(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if err := s.deps.Engine.SetAutoMode(body.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "auto_watering_enabled": body.Enabled})
}

// handleManualToggle returns 409 when the pump is busy or the hardware is
// down, with the rejection reason in the body.
func (s *Server) handleManualToggle(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	ok, msg := s.deps.Engine.SetManualToggle(body.Enabled)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "message": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": msg, "status": s.deps.Engine.Status()})
}

func (s *Server) handleOLED(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if err := s.deps.Engine.SetOLEDEnabled(body.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "oled_enabled": body.Enabled})
}

func (s *Server) handleReadings(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "48"))

	readings, err := s.deps.Engine.RecentReadings(hours)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"readings": readings})
}

func (s *Server) handleWaterings(c *gin.Context) {
	count, _ := strconv.Atoi(c.DefaultQuery("count", "20"))

	events, err := s.deps.Engine.RecentWaterings(count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"waterings": events})
}
