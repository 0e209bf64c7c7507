package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bonsaihub/controller/internal/update"
)

// handleHealth mirrors the dashboard's connection pill: ok when the
// controller is up with usable hardware, warn when running degraded.
func (s *Server) handleHealth(c *gin.Context) {
	st := s.deps.Engine.Status()
	gpioReady := s.deps.Engine.HardwareReady()
	sensorLive := st.Moisture != nil

	level := "ok"
	message := "Connected"
	connected := true
	switch {
	case !gpioReady:
		level = "warn"
		message = "Controller running, GPIO unavailable"
		connected = false
	case sensorLive:
		message = "Connected (sensor live)"
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":      connected,
		"level":          level,
		"message":        message,
		"gpio_ready":     gpioReady,
		"sensor_live":    sensorLive,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleRestart(c *gin.Context) {
	if s.deps.Restart == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "message": "Restart is not available."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Restarting hub controller..."})
	go s.deps.Restart()
}

func (s *Server) handleUpdateConfigGet(c *gin.Context) {
	if s.deps.Updater == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Updater not available"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Updater.Config())
}

func (s *Server) handleUpdateConfigSet(c *gin.Context) {
	if s.deps.Updater == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Updater not available"})
		return
	}

	var cfg update.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	saved, err := s.deps.Updater.SetConfig(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "config": saved})
}

func (s *Server) handleHubUpdate(c *gin.Context) {
	if s.deps.Updater == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "message": "Updater not available"})
		return
	}

	if err := s.deps.Updater.Apply(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Updating and restarting..."})
}
