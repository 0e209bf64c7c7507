// Package update manages hub self-updates. The hub tree is a git checkout;
// the manager probes the configured remote for new commits, applies them with
// a hard reset, and asks the host process to restart. A script mode exists
// for installs that ship their own update_modules.sh.
package update

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Update source selectors.
const (
	ModeGit    = "git"
	ModeScript = "script"
)

const (
	minPollSeconds = 30
	maxPollSeconds = 3600
	probeTimeout   = 40 * time.Second
)

// Config holds the updater settings, persisted as hub_update.json next to
// the rest of the hub state.
type Config struct {
	Mode        string `json:"mode"` // git | script
	RepoURL     string `json:"repo_url"`
	Branch      string `json:"branch"`
	AutoDeploy  bool   `json:"auto_deploy"`
	PollSeconds int    `json:"poll_seconds"`
}

// DefaultConfig returns the compiled-in updater configuration.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeGit,
		Branch:      "main",
		AutoDeploy:  true,
		PollSeconds: 60,
	}
}

// Normalize clamps and defaults the tunables so a hand-edited config file
// cannot produce a pathological poll loop.
func (c Config) Normalize() Config {
	if c.Mode != ModeScript {
		c.Mode = ModeGit
	}
	c.RepoURL = strings.TrimSpace(c.RepoURL)
	c.Branch = strings.TrimSpace(c.Branch)
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.PollSeconds < minPollSeconds {
		c.PollSeconds = minPollSeconds
	}
	if c.PollSeconds > maxPollSeconds {
		c.PollSeconds = maxPollSeconds
	}
	return c
}

// RestartFunc is invoked after a successful update to relaunch the hub.
type RestartFunc func()

// Manager owns the updater configuration and the auto-deploy worker.
type Manager struct {
	appDir     string
	configPath string
	scriptPath string
	restart    RestartFunc

	mu  sync.Mutex
	cfg Config

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a manager rooted at the hub install directory. Configuration
// is loaded from hub_update.json when present.
func New(appDir string, restart RestartFunc) *Manager {
	m := &Manager{
		appDir:     appDir,
		configPath: filepath.Join(appDir, "hub_update.json"),
		scriptPath: filepath.Join(appDir, "update_modules.sh"),
		restart:    restart,
		cfg:        DefaultConfig(),
		stopChan:   make(chan struct{}),
	}
	m.cfg = m.loadConfig()
	return m
}

func (m *Manager) loadConfig() Config {
	cfg := DefaultConfig()
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("Ignoring malformed updater config: %v", err)
		return DefaultConfig()
	}
	return cfg.Normalize()
}

// Config returns the current updater configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetConfig normalizes, applies and persists new updater settings.
func (m *Manager) SetConfig(cfg Config) (Config, error) {
	cfg = cfg.Normalize()

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return cfg, fmt.Errorf("encode updater config: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return cfg, fmt.Errorf("persist updater config: %w", err)
	}
	return cfg, nil
}

// Start launches the auto-deploy worker.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.autoDeployLoop()
}

// Stop terminates the worker and waits for it.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}

func (m *Manager) autoDeployLoop() {
	defer m.wg.Done()

	// Let the rest of the hub come up before the first probe.
	select {
	case <-m.stopChan:
		return
	case <-time.After(20 * time.Second):
	}

	for {
		cfg := m.Config()
		if cfg.AutoDeploy && cfg.Mode == ModeGit && cfg.RepoURL != "" {
			available, err := m.gitUpdateAvailable(cfg)
			if err != nil {
				log.Printf("Auto-deploy probe failed: %v", err)
			} else if available {
				log.Printf("Update found on %s, applying", cfg.Branch)
				if err := m.Apply(); err != nil {
					log.Printf("Auto-deploy apply failed: %v", err)
				} else {
					return
				}
			}
		}

		select {
		case <-m.stopChan:
			return
		case <-time.After(time.Duration(cfg.PollSeconds) * time.Second):
		}
	}
}

// gitScript builds the shared remote-sync preamble. The checkout may start
// without a .git directory on first install.
func gitScript(appDir string, cfg Config, tail string) string {
	var b strings.Builder
	b.WriteString("set -e; ")
	fmt.Fprintf(&b, "cd %q; ", appDir)
	b.WriteString("export GIT_SSH_COMMAND='ssh -o StrictHostKeyChecking=accept-new'; ")
	b.WriteString("if [ ! -d .git ]; then git init -q; fi; ")
	b.WriteString("if git remote get-url origin >/dev/null 2>&1; then ")
	fmt.Fprintf(&b, "git remote set-url origin %q; ", cfg.RepoURL)
	b.WriteString("else ")
	fmt.Fprintf(&b, "git remote add origin %q; ", cfg.RepoURL)
	b.WriteString("fi; ")
	fmt.Fprintf(&b, "git fetch --depth 1 origin %q; ", cfg.Branch)
	b.WriteString(tail)
	return b.String()
}

func (m *Manager) gitUpdateAvailable(cfg Config) (bool, error) {
	script := gitScript(m.appDir, cfg,
		"if git rev-parse --verify HEAD >/dev/null 2>&1; then "+
			"LOCAL=$(git rev-parse HEAD); REMOTE=$(git rev-parse FETCH_HEAD); "+
			`if [ "$LOCAL" = "$REMOTE" ]; then echo NO_CHANGE; else echo UPDATE; fi; `+
			"else echo UPDATE; fi")

	cmd := exec.Command("/bin/sh", "-c", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		return false, fmt.Errorf("git probe: %s", lines[len(lines)-1])
	}

	lines := strings.Fields(strings.TrimSpace(string(out)))
	return len(lines) > 0 && lines[len(lines)-1] == "UPDATE", nil
}

// Apply runs the configured update command and triggers a restart. Callers
// get an error when nothing is configured; the restart itself is fire and
// forget.
func (m *Manager) Apply() error {
	cfg := m.Config()

	var script string
	switch cfg.Mode {
	case ModeScript:
		if _, err := os.Stat(m.scriptPath); err != nil {
			return fmt.Errorf("script mode selected but update_modules.sh is missing")
		}
		script = fmt.Sprintf("cd %q && /bin/sh %q", m.appDir, m.scriptPath)
	default:
		if cfg.RepoURL == "" {
			return fmt.Errorf("git repo URL is not configured yet")
		}
		script = gitScript(m.appDir, cfg, "git reset --hard FETCH_HEAD")
	}

	cmd := exec.Command("/bin/sh", "-c", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		return fmt.Errorf("update command: %s", lines[len(lines)-1])
	}

	log.Println("Update applied, restarting")
	if m.restart != nil {
		go m.restart()
	}
	return nil
}
