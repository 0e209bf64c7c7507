// Bonsai Hub Controller
// Main entry point for the home hub service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bonsaihub/controller/internal/config"
	"github.com/bonsaihub/controller/internal/engine"
	"github.com/bonsaihub/controller/internal/hardware"
	"github.com/bonsaihub/controller/internal/homeassistant"
	"github.com/bonsaihub/controller/internal/metrics"
	"github.com/bonsaihub/controller/internal/mqtt"
	"github.com/bonsaihub/controller/internal/pihole"
	"github.com/bonsaihub/controller/internal/storage"
	"github.com/bonsaihub/controller/internal/update"
	"github.com/bonsaihub/controller/internal/web"
)

// Config is the bootstrap configuration file. Runtime tunables (thresholds,
// durations) live in the data directory and are edited from the dashboard;
// this file only carries what is needed to get the hub off the ground.
type Config struct {
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`

	Data struct {
		Dir string `yaml:"dir"`
	} `yaml:"data"`

	Hardware struct {
		RelayPin   int    `yaml:"relay_pin"`
		SensorAddr uint16 `yaml:"sensor_addr"`
	} `yaml:"hardware"`

	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`
}

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "hub-controller",
		Short: "Bonsai Hub Controller",
		Long:  "Home hub service: bonsai watering controller with Home Assistant and Pi-hole bridges.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the hub service",
		RunE:  runHub,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Bonsai Hub Controller v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/bonsaihub/controller.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	cfg.Server.Listen = ":8095"
	cfg.Data.Dir = "/var/lib/bonsaihub"
	cfg.Hardware.RelayPin = hardware.RelayPin
	cfg.Hardware.SensorAddr = hardware.SoilSensorAddr

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// The hub runs fine on defaults; a config file is optional.
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func runHub(cmd *cobra.Command, args []string) error {
	// Optional .env for secrets so they stay out of the YAML file.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := storage.Open(filepath.Join(cfg.Data.Dir, "hub.db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := config.NewStore(filepath.Join(cfg.Data.Dir, "config.json"))
	runtime, err := store.Load()
	if err != nil {
		log.Printf("Config load problem, continuing with defaults: %v", err)
	}
	applyEnvSecrets(&runtime)

	relay, err := hardware.NewGPIORelay(cfg.Hardware.RelayPin)
	if err != nil {
		log.Printf("Relay unavailable, pump control disabled: %v", err)
		relay = &hardware.GPIORelay{}
	}
	sensor := hardware.NewSeesawSensor(byte(cfg.Hardware.SensorAddr))

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "bonsai-hub"
		}
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT.Broker, clientID)
		if err != nil {
			log.Printf("MQTT unavailable, continuing without publishing: %v", err)
		} else {
			publisher = pub
		}
	}

	eng := engine.New(engine.Deps{
		Config:    runtime,
		Store:     store,
		DB:        db,
		Sensor:    sensor,
		Relay:     relay,
		Publisher: publisher,
		Metrics:   metrics.New(),
	})

	haClient := homeassistant.New(func() homeassistant.Settings {
		c := eng.ConfigSnapshot()
		return homeassistant.Settings{
			Enabled:      c.HAEnabled,
			BaseURL:      c.HABaseURL,
			Token:        c.HAToken,
			SwitchEntity: c.HASwitchEntity,
			LightEntity:  c.HALightEntity,
		}
	})
	piholeClient := pihole.New(func() pihole.Settings {
		c := eng.ConfigSnapshot()
		return pihole.Settings{
			Enabled:        c.PiholeEnabled,
			BaseURL:        c.PiholeBaseURL,
			Mode:           c.PiholeMode,
			VerifyTLS:      c.PiholeVerifyTLS,
			Password:       c.PiholePassword,
			LegacyAPIToken: c.PiholeLegacyAPIToken,
		}
	})

	// Restart by signaling ourselves; the service manager relaunches the
	// unit.
	restart := func() {
		p, err := os.FindProcess(os.Getpid())
		if err == nil {
			p.Signal(syscall.SIGTERM)
		}
	}
	updater := update.New(cfg.Data.Dir, restart)

	srv := web.New(cfg.Server.Listen, web.Deps{
		Engine:  eng,
		HA:      haClient,
		Pihole:  piholeClient,
		Updater: updater,
		Restart: restart,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("Starting Bonsai Hub Controller")
	eng.Start()
	updater.Start()

	log.Printf("Dashboard listening on %s", cfg.Server.Listen)
	err = srv.Run(ctx)

	log.Println("Shutting down...")
	updater.Stop()
	eng.Stop()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("Shutdown complete")
	return nil
}

// applyEnvSecrets lets deployments keep tokens in the environment instead of
// the persisted config file. Environment wins for this process only; nothing
// is written back.
func applyEnvSecrets(cfg *config.Config) {
	if v := strings.TrimSpace(os.Getenv("BONSAIHUB_HA_TOKEN")); v != "" {
		cfg.HAToken = v
	}
	if v := strings.TrimSpace(os.Getenv("BONSAIHUB_PIHOLE_PASSWORD")); v != "" {
		cfg.PiholePassword = v
	}
	if v := strings.TrimSpace(os.Getenv("BONSAIHUB_PIHOLE_API_TOKEN")); v != "" {
		cfg.PiholeLegacyAPIToken = v
	}
}
