// Package pihole proxies a Pi-hole instance. Two API generations exist in
// the field: the v6 session API (password login, /api/dns/blocking) and the
// legacy v5 api.php (token query parameter). Auto mode tries v6 first and
// falls back to legacy.
package pihole

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const requestTimeout = 6 * time.Second

// API generation selectors.
const (
	ModeAuto   = "auto"
	ModeV6     = "v6"
	ModeLegacy = "legacy"
)

// Settings is the slice of hub configuration the client needs, supplied per
// call so config edits take effect without a restart.
type Settings struct {
	Enabled        bool
	BaseURL        string
	Mode           string
	VerifyTLS      bool
	Password       string
	LegacyAPIToken string
}

// Status is the snapshot served to the dashboard. Counter fields are nil
// when the instance did not report them.
type Status struct {
	Enabled        bool     `json:"enabled"`
	BaseURL        string   `json:"base_url"`
	Mode           string   `json:"mode"`
	VerifyTLS      bool     `json:"verify_tls"`
	Connected      bool     `json:"connected"`
	Message        string   `json:"message"`
	Blocking       *bool    `json:"blocking"`
	QueriesToday   *float64 `json:"queries_today"`
	BlockedToday   *float64 `json:"blocked_today"`
	BlockedPercent *float64 `json:"blocked_percent"`
}

// Client talks to one Pi-hole instance.
type Client struct {
	settings func() Settings

	mu       sync.Mutex
	insecure *http.Client
	secure   *http.Client
}

// New creates a client reading its settings through the given provider.
func New(settings func() Settings) *Client {
	insecureTransport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &Client{
		settings: settings,
		secure:   &http.Client{Timeout: requestTimeout},
		insecure: &http.Client{Timeout: requestTimeout, Transport: insecureTransport},
	}
}

func (c *Client) httpClient(s Settings) *http.Client {
	if s.VerifyTLS {
		return c.secure
	}
	return c.insecure
}

func (c *Client) requestJSON(s Settings, method, rawURL string, payload interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient(s).Do(req)
	if err != nil {
		return nil, err
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
		return map[string]interface{}{"raw": string(raw)}, nil
	}
	return out, nil
}

func normalizeBase(s Settings) string {
	return strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
}

// v6APIRoot maps the configured base onto the v6 API root, tolerating bases
// that already point at /admin or /api.
func v6APIRoot(s Settings) string {
	base := normalizeBase(s)
	if base == "" {
		return ""
	}
	if strings.HasSuffix(base, "/api") {
		return base
	}
	if strings.HasSuffix(base, "/admin") {
		return base + "/api"
	}
	return base + "/api"
}

// findSID digs a session ID out of an arbitrarily nested auth response. The
// field moved between Pi-hole point releases.
func findSID(obj interface{}) string {
	switch v := obj.(type) {
	case map[string]interface{}:
		if sid, ok := v["sid"].(string); ok && strings.TrimSpace(sid) != "" {
			return strings.TrimSpace(sid)
		}
		for _, value := range v {
			if found := findSID(value); found != "" {
				return found
			}
		}
	case []interface{}:
		for _, item := range v {
			if found := findSID(item); found != "" {
				return found
			}
		}
	}
	return ""
}

func (c *Client) v6Login(s Settings) (string, error) {
	root := v6APIRoot(s)
	if root == "" {
		return "", fmt.Errorf("set Pi-hole base URL first")
	}
	password := strings.TrimSpace(s.Password)
	if password == "" {
		return "", fmt.Errorf("set Pi-hole password/app password first")
	}

	data, err := c.requestJSON(s, http.MethodPost, root+"/auth",
		map[string]string{"password": password})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	sid := findSID(data)
	if sid == "" {
		return "", fmt.Errorf("no session ID in Pi-hole auth response")
	}
	return sid, nil
}

func (c *Client) v6GetBlocking(s Settings, sid string) (bool, error) {
	data, err := c.requestJSON(s, http.MethodGet,
		fmt.Sprintf("%s/dns/blocking?sid=%s", v6APIRoot(s), url.QueryEscape(sid)), nil)
	if err != nil {
		return false, err
	}
	switch v := data["blocking"].(type) {
	case bool:
		return v, nil
	case string:
		return v == "enabled", nil
	}
	return false, fmt.Errorf("response missing blocking field")
}

func (c *Client) v6SetBlocking(s Settings, sid string, enabled bool) error {
	_, err := c.requestJSON(s, http.MethodPost,
		fmt.Sprintf("%s/dns/blocking?sid=%s", v6APIRoot(s), url.QueryEscape(sid)),
		map[string]bool{"blocking": enabled})
	return err
}

// v6Summary tries the stats endpoints that have existed across v6 point
// releases and returns the first non-empty response.
func (c *Client) v6Summary(s Settings, sid string) map[string]interface{} {
	root := v6APIRoot(s)
	for _, path := range []string{"/stats/summary", "/stats/queries", "/stats"} {
		data, err := c.requestJSON(s, http.MethodGet,
			fmt.Sprintf("%s%s?sid=%s", root, path, url.QueryEscape(sid)), nil)
		if err == nil && len(data) > 0 {
			return data
		}
	}
	return map[string]interface{}{}
}

func legacyAPIURL(s Settings) string {
	base := normalizeBase(s)
	if base == "" {
		return ""
	}
	if strings.HasSuffix(base, "/api.php") {
		return base
	}
	if strings.HasSuffix(base, "/admin") {
		return base + "/api.php"
	}
	return base + "/admin/api.php"
}

func legacyAuthQuery(s Settings) string {
	token := strings.TrimSpace(s.LegacyAPIToken)
	if token == "" {
		return ""
	}
	return "&auth=" + url.QueryEscape(token)
}

// pickNumber returns the first numeric value found under any of the keys.
// Counter key names differ between API generations.
func pickNumber(obj map[string]interface{}, keys ...string) *float64 {
	for _, key := range keys {
		if v, ok := obj[key].(float64); ok {
			return &v
		}
	}
	return nil
}

func (c *Client) statusFromV6(s Settings) Status {
	st := Status{Enabled: s.Enabled, Mode: ModeV6, BaseURL: normalizeBase(s), VerifyTLS: s.VerifyTLS}

	sid, err := c.v6Login(s)
	if err != nil {
		st.Message = err.Error()
		return st
	}

	blocking, err := c.v6GetBlocking(s, sid)
	if err != nil {
		st.Message = err.Error()
		return st
	}
	st.Connected = true
	st.Message = "Connected"
	st.Blocking = &blocking

	summary := c.v6Summary(s, sid)
	st.QueriesToday = pickNumber(summary, "queries", "queries_today", "total_queries")
	st.BlockedToday = pickNumber(summary, "blocked", "ads_blocked_today", "blocked_queries")
	st.BlockedPercent = pickNumber(summary, "blocked_percent", "ads_percentage_today", "percent_blocked")
	return st
}

func (c *Client) statusFromLegacy(s Settings) Status {
	st := Status{Enabled: s.Enabled, Mode: ModeLegacy, BaseURL: normalizeBase(s), VerifyTLS: s.VerifyTLS}

	api := legacyAPIURL(s)
	if api == "" {
		st.Message = "Set Pi-hole base URL first."
		return st
	}
	auth := legacyAuthQuery(s)

	summary, err := c.requestJSON(s, http.MethodGet, api+"?summaryRaw"+auth, nil)
	if err != nil {
		st.Message = err.Error()
		return st
	}
	statusResp, err := c.requestJSON(s, http.MethodGet, api+"?status"+auth, nil)
	if err != nil {
		st.Message = err.Error()
		return st
	}

	st.Connected = true
	st.Message = "Connected"
	if v, ok := statusResp["status"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "enabled":
			b := true
			st.Blocking = &b
		case "disabled":
			b := false
			st.Blocking = &b
		}
	}
	st.QueriesToday = pickNumber(summary, "dns_queries_today", "queries_today", "total_queries")
	st.BlockedToday = pickNumber(summary, "ads_blocked_today", "blocked_queries")
	st.BlockedPercent = pickNumber(summary, "ads_percentage_today", "blocked_percent")
	return st
}

// GetStatus probes the instance per the configured mode. Auto mode reports
// whichever generation answered; legacy's message wins on double failure
// since it is usually the more specific one.
func (c *Client) GetStatus() Status {
	s := c.settings()
	base := Status{
		Enabled:   s.Enabled,
		BaseURL:   normalizeBase(s),
		Mode:      normalizeMode(s.Mode),
		VerifyTLS: s.VerifyTLS,
		Message:   "Pi-hole integration disabled.",
	}

	if !s.Enabled {
		return base
	}
	if base.BaseURL == "" {
		base.Message = "Set Pi-hole base URL."
		return base
	}

	switch base.Mode {
	case ModeV6:
		return c.statusFromV6(s)
	case ModeLegacy:
		return c.statusFromLegacy(s)
	}

	v6 := c.statusFromV6(s)
	if v6.Connected {
		return v6
	}
	legacy := c.statusFromLegacy(s)
	if legacy.Connected {
		return legacy
	}

	base.Message = legacy.Message
	if base.Message == "" {
		base.Message = v6.Message
	}
	base.Mode = ModeAuto
	return base
}

// SetBlocking enables or disables DNS blocking per the configured mode.
func (c *Client) SetBlocking(enabled bool) error {
	s := c.settings()

	switch normalizeMode(s.Mode) {
	case ModeV6:
		sid, err := c.v6Login(s)
		if err != nil {
			return err
		}
		return c.v6SetBlocking(s, sid, enabled)
	case ModeLegacy:
		return c.legacySetBlocking(s, enabled)
	}

	if sid, err := c.v6Login(s); err == nil {
		if err := c.v6SetBlocking(s, sid, enabled); err == nil {
			return nil
		}
	}
	return c.legacySetBlocking(s, enabled)
}

func (c *Client) legacySetBlocking(s Settings, enabled bool) error {
	api := legacyAPIURL(s)
	if api == "" {
		return fmt.Errorf("set Pi-hole base URL first")
	}
	action := "disable"
	if enabled {
		action = "enable"
	}
	_, err := c.requestJSON(s, http.MethodGet, api+"?"+action+legacyAuthQuery(s), nil)
	if err != nil {
		return fmt.Errorf("%s blocking: %w", action, err)
	}
	return nil
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeV6:
		return ModeV6
	case ModeLegacy:
		return ModeLegacy
	}
	return ModeAuto
}
