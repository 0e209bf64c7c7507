package homeassistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fixedSettings(s Settings) func() Settings {
	return func() Settings { return s }
}

func TestGetStatusUnconfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantMsg  string
	}{
		{
			name:     "missing base url",
			settings: Settings{Enabled: true, Token: "tok"},
			wantMsg:  "Set Home Assistant base URL.",
		},
		{
			name:     "missing token",
			settings: Settings{Enabled: true, BaseURL: "http://ha.local:8123"},
			wantMsg:  "Set Home Assistant long-lived token.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(fixedSettings(tt.settings))
			st := c.GetStatus()
			if st.Connected {
				t.Fatal("Unconfigured client must not report connected")
			}
			if st.Message != tt.wantMsg {
				t.Fatalf("Expected message %q, got %q", tt.wantMsg, st.Message)
			}
		})
	}
}

func TestGetStatusFetchesEntityStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Missing bearer token, got %q", got)
		}
		switch r.URL.Path {
		case "/api/":
			json.NewEncoder(w).Encode(map[string]string{"message": "API running."})
		case "/api/states/switch.plug":
			json.NewEncoder(w).Encode(map[string]string{"state": "on"})
		case "/api/states/light.lamp":
			json.NewEncoder(w).Encode(map[string]string{"state": "off"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(fixedSettings(Settings{
		Enabled:      true,
		BaseURL:      srv.URL,
		Token:        "secret",
		SwitchEntity: "switch.plug",
		LightEntity:  "light.lamp",
	}))

	st := c.GetStatus()
	if !st.Connected {
		t.Fatalf("Expected connected, got message %q", st.Message)
	}
	if st.SwitchState != "on" {
		t.Fatalf("Expected switch state on, got %q", st.SwitchState)
	}
	if st.LightState != "off" {
		t.Fatalf("Expected light state off, got %q", st.LightState)
	}
	if !st.TokenSet {
		t.Fatal("TokenSet should be true")
	}
}

func TestGetStatusConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(fixedSettings(Settings{Enabled: true, BaseURL: srv.URL, Token: "bad"}))
	st := c.GetStatus()
	if st.Connected {
		t.Fatal("Expected connection failure")
	}
	if st.Message == "" {
		t.Fatal("Failure must carry a message")
	}
}

func TestSetSwitchCallsService(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(fixedSettings(Settings{
		BaseURL:      srv.URL,
		Token:        "tok",
		SwitchEntity: "switch.pump_plug",
	}))

	if err := c.SetSwitch(true); err != nil {
		t.Fatalf("SetSwitch failed: %v", err)
	}
	if gotPath != "/api/services/switch/turn_on" {
		t.Fatalf("Unexpected service path %q", gotPath)
	}
	if gotBody["entity_id"] != "switch.pump_plug" {
		t.Fatalf("Unexpected entity payload %v", gotBody)
	}

	if err := c.SetSwitch(false); err != nil {
		t.Fatalf("SetSwitch off failed: %v", err)
	}
	if gotPath != "/api/services/switch/turn_off" {
		t.Fatalf("Unexpected service path %q", gotPath)
	}
}

func TestSetLightRequiresEntity(t *testing.T) {
	c := New(fixedSettings(Settings{BaseURL: "http://ha.local", Token: "tok"}))
	if err := c.SetLight(true); err == nil {
		t.Fatal("SetLight must fail without a configured entity")
	}
}
