package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bonsaihub/controller/internal/config"
	"github.com/bonsaihub/controller/internal/pihole"
)

func (s *Server) handleHAStatus(c *gin.Context) {
	if s.deps.HA == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Home Assistant integration not configured"})
		return
	}
	c.JSON(http.StatusOK, s.deps.HA.GetStatus())
}

// handleHAConfig updates the Home Assistant settings. A blank token in the
// payload keeps the stored one so the dashboard never has to echo secrets.
func (s *Server) handleHAConfig(c *gin.Context) {
	if s.deps.HA == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Home Assistant integration not configured"})
		return
	}

	var body struct {
		Enabled      *bool   `json:"ha_enabled"`
		BaseURL      *string `json:"ha_base_url"`
		SwitchEntity *string `json:"ha_switch_entity"`
		LightEntity  *string `json:"ha_light_entity"`
		Token        *string `json:"ha_token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	_, err := s.deps.Engine.MutateConfig(func(cfg *config.Config) {
		if body.Enabled != nil {
			cfg.HAEnabled = *body.Enabled
		}
		if body.BaseURL != nil {
			cfg.HABaseURL = strings.TrimSpace(*body.BaseURL)
		}
		if body.SwitchEntity != nil {
			cfg.HASwitchEntity = strings.TrimSpace(*body.SwitchEntity)
		}
		if body.LightEntity != nil {
			cfg.HALightEntity = strings.TrimSpace(*body.LightEntity)
		}
		if body.Token != nil && strings.TrimSpace(*body.Token) != "" {
			cfg.HAToken = strings.TrimSpace(*body.Token)
		}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ha_status": s.deps.HA.GetStatus()})
}

func (s *Server) handleHASwitch(c *gin.Context) {
	s.handleHAService(c, func(on bool) error { return s.deps.HA.SetSwitch(on) })
}

func (s *Server) handleHALight(c *gin.Context) {
	s.handleHAService(c, func(on bool) error { return s.deps.HA.SetLight(on) })
}

func (s *Server) handleHAService(c *gin.Context, call func(on bool) error) {
	if s.deps.HA == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Home Assistant integration not configured"})
		return
	}

	var body struct {
		On bool `json:"on"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if err := call(body.On); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "OK"})
}

func (s *Server) handlePiholeStatus(c *gin.Context) {
	if s.deps.Pihole == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Pi-hole integration not configured"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Pihole.GetStatus())
}

func (s *Server) handlePiholeConfig(c *gin.Context) {
	if s.deps.Pihole == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Pi-hole integration not configured"})
		return
	}

	var body struct {
		Enabled        *bool   `json:"pihole_enabled"`
		BaseURL        *string `json:"pihole_base_url"`
		Mode           *string `json:"pihole_mode"`
		VerifyTLS      *bool   `json:"pihole_verify_tls"`
		Password       *string `json:"pihole_password"`
		LegacyAPIToken *string `json:"pihole_legacy_api_token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	_, err := s.deps.Engine.MutateConfig(func(cfg *config.Config) {
		if body.Enabled != nil {
			cfg.PiholeEnabled = *body.Enabled
		}
		if body.BaseURL != nil {
			cfg.PiholeBaseURL = strings.TrimSpace(*body.BaseURL)
		}
		if body.Mode != nil {
			mode := strings.ToLower(strings.TrimSpace(*body.Mode))
			if mode == pihole.ModeAuto || mode == pihole.ModeV6 || mode == pihole.ModeLegacy {
				cfg.PiholeMode = mode
			}
		}
		if body.VerifyTLS != nil {
			cfg.PiholeVerifyTLS = *body.VerifyTLS
		}
		if body.Password != nil && strings.TrimSpace(*body.Password) != "" {
			cfg.PiholePassword = strings.TrimSpace(*body.Password)
		}
		if body.LegacyAPIToken != nil && strings.TrimSpace(*body.LegacyAPIToken) != "" {
			cfg.PiholeLegacyAPIToken = strings.TrimSpace(*body.LegacyAPIToken)
		}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": s.deps.Pihole.GetStatus()})
}

func (s *Server) handlePiholeBlocking(c *gin.Context) {
	if s.deps.Pihole == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Pi-hole integration not configured"})
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	if err := s.deps.Pihole.SetBlocking(enabled); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": s.deps.Pihole.GetStatus()})
}
