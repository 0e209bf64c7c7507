package pihole

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fixedSettings(s Settings) func() Settings {
	return func() Settings { return s }
}

// fakeV6 serves the v6 session API surface used by the client.
func fakeV6(t *testing.T, blocking bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"session": map[string]interface{}{"sid": "abc123", "valid": true},
		})
	})
	mux.HandleFunc("/api/dns/blocking", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sid") != "abc123" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodPost {
			var body map[string]bool
			json.NewDecoder(r.Body).Decode(&body)
			blocking = body["blocking"]
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"blocking": blocking})
	})
	mux.HandleFunc("/api/stats/summary", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"queries": 1500.0, "blocked": 300.0, "blocked_percent": 20.0,
		})
	})
	return httptest.NewServer(mux)
}

// fakeLegacy serves the v5 api.php surface.
func fakeLegacy(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api.php" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		switch {
		case q.Has("summaryRaw"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"dns_queries_today": 900.0, "ads_blocked_today": 90.0, "ads_percentage_today": 10.0,
			})
		case q.Has("status"):
			json.NewEncoder(w).Encode(map[string]string{"status": "enabled"})
		case q.Has("enable"):
			json.NewEncoder(w).Encode(map[string]string{"status": "enabled"})
		case q.Has("disable"):
			json.NewEncoder(w).Encode(map[string]string{"status": "disabled"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestStatusDisabled(t *testing.T) {
	c := New(fixedSettings(Settings{Enabled: false, BaseURL: "http://pi.hole"}))
	st := c.GetStatus()
	if st.Connected {
		t.Fatal("Disabled integration must not connect")
	}
	if st.Message != "Pi-hole integration disabled." {
		t.Fatalf("Unexpected message %q", st.Message)
	}
}

func TestStatusV6(t *testing.T) {
	srv := fakeV6(t, true)
	defer srv.Close()

	c := New(fixedSettings(Settings{
		Enabled: true, BaseURL: srv.URL, Mode: ModeV6, Password: "hunter2", VerifyTLS: true,
	}))
	st := c.GetStatus()

	if !st.Connected {
		t.Fatalf("Expected connected, got message %q", st.Message)
	}
	if st.Blocking == nil || !*st.Blocking {
		t.Fatal("Expected blocking to be on")
	}
	if st.QueriesToday == nil || *st.QueriesToday != 1500 {
		t.Fatalf("Expected 1500 queries, got %v", st.QueriesToday)
	}
	if st.BlockedPercent == nil || *st.BlockedPercent != 20 {
		t.Fatalf("Expected 20%% blocked, got %v", st.BlockedPercent)
	}
}

func TestStatusV6BadPassword(t *testing.T) {
	srv := fakeV6(t, true)
	defer srv.Close()

	c := New(fixedSettings(Settings{
		Enabled: true, BaseURL: srv.URL, Mode: ModeV6, Password: "wrong", VerifyTLS: true,
	}))
	st := c.GetStatus()
	if st.Connected {
		t.Fatal("Bad password must not connect")
	}
	if st.Message == "" {
		t.Fatal("Failure must carry a message")
	}
}

func TestStatusLegacy(t *testing.T) {
	srv := fakeLegacy(t)
	defer srv.Close()

	c := New(fixedSettings(Settings{
		Enabled: true, BaseURL: srv.URL, Mode: ModeLegacy, VerifyTLS: true,
	}))
	st := c.GetStatus()

	if !st.Connected {
		t.Fatalf("Expected connected, got message %q", st.Message)
	}
	if st.Blocking == nil || !*st.Blocking {
		t.Fatal("Expected blocking enabled")
	}
	if st.QueriesToday == nil || *st.QueriesToday != 900 {
		t.Fatalf("Expected 900 queries, got %v", st.QueriesToday)
	}
}

func TestStatusAutoFallsBackToLegacy(t *testing.T) {
	srv := fakeLegacy(t)
	defer srv.Close()

	// No password configured, so the v6 login attempt fails outright and
	// auto mode moves on to the legacy endpoint.
	c := New(fixedSettings(Settings{
		Enabled: true, BaseURL: srv.URL, Mode: ModeAuto, VerifyTLS: true,
	}))
	st := c.GetStatus()

	if !st.Connected {
		t.Fatalf("Expected legacy fallback to connect, got %q", st.Message)
	}
	if st.Mode != ModeLegacy {
		t.Fatalf("Expected mode %s, got %s", ModeLegacy, st.Mode)
	}
}

func TestSetBlockingV6(t *testing.T) {
	srv := fakeV6(t, true)
	defer srv.Close()

	settings := Settings{
		Enabled: true, BaseURL: srv.URL, Mode: ModeV6, Password: "hunter2", VerifyTLS: true,
	}
	c := New(fixedSettings(settings))

	if err := c.SetBlocking(false); err != nil {
		t.Fatalf("SetBlocking failed: %v", err)
	}
	st := c.GetStatus()
	if st.Blocking == nil || *st.Blocking {
		t.Fatal("Blocking should be off after SetBlocking(false)")
	}
}

func TestSetBlockingLegacy(t *testing.T) {
	srv := fakeLegacy(t)
	defer srv.Close()

	c := New(fixedSettings(Settings{
		Enabled: true, BaseURL: srv.URL, Mode: ModeLegacy, VerifyTLS: true,
	}))
	if err := c.SetBlocking(true); err != nil {
		t.Fatalf("SetBlocking failed: %v", err)
	}
	if err := c.SetBlocking(false); err != nil {
		t.Fatalf("SetBlocking off failed: %v", err)
	}
}

func TestV6APIRootNormalization(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://pi.hole", "http://pi.hole/api"},
		{"http://pi.hole/", "http://pi.hole/api"},
		{"http://pi.hole/admin", "http://pi.hole/admin/api"},
		{"http://pi.hole/api", "http://pi.hole/api"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := v6APIRoot(Settings{BaseURL: tt.base}); got != tt.want {
			t.Errorf("v6APIRoot(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestLegacyAPIURLNormalization(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://pi.hole", "http://pi.hole/admin/api.php"},
		{"http://pi.hole/admin", "http://pi.hole/admin/api.php"},
		{"http://pi.hole/admin/api.php", "http://pi.hole/admin/api.php"},
	}
	for _, tt := range tests {
		if got := legacyAPIURL(Settings{BaseURL: tt.base}); got != tt.want {
			t.Errorf("legacyAPIURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
