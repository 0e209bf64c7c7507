// Package homeassistant is a thin REST client for a Home Assistant instance.
// The hub proxies switch and light control through it so the dashboard only
// ever talks to the hub.
package homeassistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 5 * time.Second

// Settings is the slice of hub configuration the client needs. A provider
// function supplies it per call so config edits take effect immediately.
type Settings struct {
	Enabled      bool
	BaseURL      string
	Token        string
	SwitchEntity string
	LightEntity  string
}

// Status is the connection and entity snapshot served to the dashboard. The
// token itself never leaves the hub; only whether one is set.
type Status struct {
	Enabled      bool   `json:"enabled"`
	BaseURL      string `json:"base_url"`
	TokenSet     bool   `json:"token_set"`
	SwitchEntity string `json:"switch_entity"`
	LightEntity  string `json:"light_entity"`
	Connected    bool   `json:"connected"`
	Message      string `json:"message"`
	SwitchState  string `json:"switch_state"`
	LightState   string `json:"light_state"`
}

// Client talks to the Home Assistant REST API with a long-lived bearer token.
type Client struct {
	settings func() Settings
	http     *http.Client
}

// New creates a client reading its settings through the given provider.
func New(settings func() Settings) *Client {
	return &Client{
		settings: settings,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) request(method, path string, payload interface{}) (map[string]interface{}, error) {
	s := c.settings()
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	token := strings.TrimSpace(s.Token)

	if base == "" {
		return nil, fmt.Errorf("Home Assistant base URL is empty")
	}
	if token == "" {
		return nil, fmt.Errorf("Home Assistant token is not set")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if len(raw) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("%s", msg)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		// Service calls return a JSON array of changed states; the
		// body content does not matter, only that the call succeeded.
		return map[string]interface{}{}, nil
	}
	return out, nil
}

// entityState fetches the "state" field of one entity.
func (c *Client) entityState(entityID string) (string, error) {
	data, err := c.request(http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return "", err
	}
	state, ok := data["state"].(string)
	if !ok {
		return "unknown", nil
	}
	return state, nil
}

func (c *Client) callService(domain, service, entityID string) error {
	_, err := c.request(http.MethodPost,
		fmt.Sprintf("/api/services/%s/%s", domain, service),
		map[string]string{"entity_id": entityID})
	return err
}

// GetStatus probes the connection and the configured entities. Missing
// configuration is reported through Message, never as an error.
func (c *Client) GetStatus() Status {
	s := c.settings()
	st := Status{
		Enabled:      s.Enabled,
		BaseURL:      strings.TrimSpace(s.BaseURL),
		TokenSet:     strings.TrimSpace(s.Token) != "",
		SwitchEntity: strings.TrimSpace(s.SwitchEntity),
		LightEntity:  strings.TrimSpace(s.LightEntity),
		SwitchState:  "n/a",
		LightState:   "n/a",
	}

	if st.BaseURL == "" {
		st.Message = "Set Home Assistant base URL."
		return st
	}
	if !st.TokenSet {
		st.Message = "Set Home Assistant long-lived token."
		return st
	}

	if _, err := c.request(http.MethodGet, "/api/", nil); err != nil {
		st.Message = err.Error()
		return st
	}
	st.Connected = true
	st.Message = "Connected"

	if st.SwitchEntity != "" {
		if state, err := c.entityState(st.SwitchEntity); err != nil {
			st.SwitchState = fmt.Sprintf("error (%v)", err)
		} else {
			st.SwitchState = state
		}
	}
	if st.LightEntity != "" {
		if state, err := c.entityState(st.LightEntity); err != nil {
			st.LightState = fmt.Sprintf("error (%v)", err)
		} else {
			st.LightState = state
		}
	}
	return st
}

// SetSwitch turns the configured smart plug on or off.
func (c *Client) SetSwitch(on bool) error {
	entity := strings.TrimSpace(c.settings().SwitchEntity)
	if entity == "" {
		return fmt.Errorf("set ha_switch_entity first")
	}
	return c.callService("switch", serviceFor(on), entity)
}

// SetLight turns the configured light on or off.
func (c *Client) SetLight(on bool) error {
	entity := strings.TrimSpace(c.settings().LightEntity)
	if entity == "" {
		return fmt.Errorf("set ha_light_entity first")
	}
	return c.callService("light", serviceFor(on), entity)
}

func serviceFor(on bool) string {
	if on {
		return "turn_on"
	}
	return "turn_off"
}
