// Package wizard provides an interactive setup wizard for PeerLink.
package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/peerlink-io/peerlink/internal/certutil"
	"github.com/peerlink-io/peerlink/internal/config"
	"github.com/peerlink-io/peerlink/internal/identity"
)

// certValidity is how long wizard-generated certificates last.
const certValidity = 365 * 24 * time.Hour

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// Run executes the interactive setup wizard.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	configPath, err := w.askConfigPath()
	if err != nil {
		return nil, err
	}

	host, port, path, err := w.askListener()
	if err != nil {
		return nil, err
	}

	key, allowDiscovery, err := w.askAdmission()
	if err != nil {
		return nil, err
	}

	heartbeat, staleness, err := w.askTiming()
	if err != nil {
		return nil, err
	}

	tlsConfig, err := w.askTLSSetup(configPath, host)
	if err != nil {
		return nil, err
	}

	healthEnabled, healthAddr, logLevel, err := w.askAdvancedOptions()
	if err != nil {
		return nil, err
	}

	cfg := w.buildConfig(
		host, port, path, key, allowDiscovery,
		heartbeat, staleness, tlsConfig,
		healthEnabled, healthAddr, logLevel,
	)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := w.writeConfig(cfg, configPath); err != nil {
		return nil, err
	}

	w.printSummary(configPath, cfg)

	return &Result{
		Config:     cfg,
		ConfigPath: configPath,
	}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render(`
  ____                _     _       _
 |  _ \ ___  ___ _ __| |   (_)_ __ | | __
 | |_) / _ \/ _ \ '__| |   | | '_ \| |/ /
 |  __/  __/  __/ |  | |___| | | | |   <
 |_|   \___|\___|_|  |_____|_|_| |_|_|\_\
`)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  WebRTC Signaling Relay - Setup Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askConfigPath() (configPath string, err error) {
	configPath = "./config.yaml"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Basic Setup").
				Description("Choose where the configuration file is written."),

			huh.NewInput().
				Title("Config File Path").
				Placeholder("./config.yaml").
				Value(&configPath).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("config path is required")
					}
					if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
						return fmt.Errorf("config file should have .yaml or .yml extension")
					}
					return nil
				}),
		),
	).WithTheme(w.theme)

	err = form.Run()
	return
}

func (w *Wizard) askListener() (host string, port int, path string, err error) {
	defaults := config.Default()
	host = defaults.Server.Host
	path = defaults.Server.Path
	portStr := strconv.Itoa(defaults.Server.Port)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Listener").
				Description("Configure how the relay listens for client connections."),

			huh.NewInput().
				Title("Listen Host").
				Description("Leave empty to listen on all interfaces").
				Value(&host),

			huh.NewInput().
				Title("Listen Port").
				Placeholder(portStr).
				Value(&portStr).
				Validate(func(s string) error {
					p, convErr := strconv.Atoi(s)
					if convErr != nil || p < 1 || p > 65535 {
						return fmt.Errorf("port must be between 1 and 65535")
					}
					return nil
				}),

			huh.NewInput().
				Title("Path Prefix").
				Description("URL path clients connect to").
				Placeholder(path).
				Value(&path).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "/") {
						return fmt.Errorf("path must start with /")
					}
					if strings.HasSuffix(s, "/") && s != "/" {
						return fmt.Errorf("path must not end with /")
					}
					return nil
				}),
		),
	).WithTheme(w.theme)

	if err = form.Run(); err != nil {
		return
	}

	port, err = strconv.Atoi(portStr)
	return
}

func (w *Wizard) askAdmission() (key string, allowDiscovery bool, err error) {
	// Suggest a random credential instead of the well-known default.
	key = identity.Generate()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Admission").
				Description("Every client must present the shared key to connect."),

			huh.NewInput().
				Title("Shared Key").
				Description("A random key has been generated for you").
				Value(&key).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("key is required")
					}
					return nil
				}),

			huh.NewConfirm().
				Title("Enable peer discovery?").
				Description("Expose the list of connected identifiers over HTTP").
				Value(&allowDiscovery),
		),
	).WithTheme(w.theme)

	err = form.Run()
	return
}

func (w *Wizard) askTiming() (heartbeat, staleness time.Duration, err error) {
	defaults := config.Default()
	heartbeatStr := defaults.Relay.HeartbeatInterval.String()
	stalenessStr := defaults.Relay.StalenessTimeout.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Liveness").
				Description("Clients send keep-alives; the relay evicts the silent ones."),

			huh.NewInput().
				Title("Heartbeat Interval").
				Description("Expected keep-alive cadence (e.g. 5s)").
				Placeholder(heartbeatStr).
				Value(&heartbeatStr).
				Validate(validateDuration),

			huh.NewInput().
				Title("Staleness Timeout").
				Description("Evict after this much silence; use at least 3x the heartbeat").
				Placeholder(stalenessStr).
				Value(&stalenessStr).
				Validate(validateDuration),
		),
	).WithTheme(w.theme)

	if err = form.Run(); err != nil {
		return
	}

	heartbeat, err = time.ParseDuration(heartbeatStr)
	if err != nil {
		return
	}
	staleness, err = time.ParseDuration(stalenessStr)
	if err != nil {
		return
	}
	if staleness <= heartbeat {
		err = fmt.Errorf("staleness timeout (%s) must be greater than heartbeat interval (%s)", staleness, heartbeat)
	}
	return
}

func (w *Wizard) askTLSSetup(configPath, host string) (tlsConfig config.TLS, err error) {
	var tlsChoice string = "none"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("TLS").
				Description("Serve wss:// directly, or run plain ws:// behind a terminating proxy."),

			huh.NewSelect[string]().
				Title("TLS Setup").
				Options(
					huh.NewOption("No TLS (behind a reverse proxy)", "none"),
					huh.NewOption("Generate a self-signed certificate", "generate"),
					huh.NewOption("Use existing certificate files", "existing"),
				).
				Value(&tlsChoice),
		),
	).WithTheme(w.theme)

	if err = form.Run(); err != nil {
		return
	}

	switch tlsChoice {
	case "generate":
		tlsConfig, err = w.generateCertificate(configPath, host)
	case "existing":
		tlsConfig, err = w.useExistingCertificate()
	}

	return
}

func (w *Wizard) generateCertificate(configPath, host string) (config.TLS, error) {
	certsDir := filepath.Join(filepath.Dir(configPath), "certs")
	commonName := host
	if commonName == "" {
		commonName = "peerlink"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Generate Certificate").
				Description("A self-signed server certificate will be generated.\nClients must be configured to trust it."),

			huh.NewInput().
				Title("Common Name").
				Description("Hostname clients will connect to").
				Placeholder(commonName).
				Value(&commonName),

			huh.NewInput().
				Title("Certificates Directory").
				Placeholder(certsDir).
				Value(&certsDir),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return config.TLS{}, err
	}

	cert, err := certutil.GenerateSelfSigned(commonName, certValidity, []string{commonName, host})
	if err != nil {
		return config.TLS{}, fmt.Errorf("failed to generate certificate: %w", err)
	}

	certPath := filepath.Join(certsDir, "server.crt")
	keyPath := filepath.Join(certsDir, "server.key")
	if err := cert.SaveToFiles(certPath, keyPath); err != nil {
		return config.TLS{}, fmt.Errorf("failed to save certificate: %w", err)
	}

	fmt.Printf("\n✓ Generated certificate: %s\n", certPath)
	fmt.Printf("  Fingerprint: %s\n\n", cert.Fingerprint())

	return config.TLS{
		Cert: certPath,
		Key:  keyPath,
	}, nil
}

func (w *Wizard) useExistingCertificate() (config.TLS, error) {
	certPath := "./certs/server.crt"
	keyPath := "./certs/server.key"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Existing Certificate").
				Description("Specify paths to your certificate files."),

			huh.NewInput().
				Title("Certificate File").
				Placeholder(certPath).
				Value(&certPath).
				Validate(fileExists),

			huh.NewInput().
				Title("Private Key File").
				Placeholder(keyPath).
				Value(&keyPath).
				Validate(fileExists),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return config.TLS{}, err
	}

	return config.TLS{
		Cert: certPath,
		Key:  keyPath,
	}, nil
}

func (w *Wizard) askAdvancedOptions() (healthEnabled bool, healthAddr, logLevel string, err error) {
	healthAddr = ":8080"
	logLevel = "info"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Advanced Options").
				Description("Configure monitoring and logging."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&logLevel),

			huh.NewConfirm().
				Title("Enable health endpoint?").
				Description("HTTP endpoint for probes and Prometheus metrics").
				Value(&healthEnabled),
		),
	).WithTheme(w.theme)

	if err = form.Run(); err != nil {
		return
	}

	if healthEnabled {
		addrForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Health Address").
					Placeholder(":8080").
					Value(&healthAddr).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("address is required")
						}
						return nil
					}),
			),
		).WithTheme(w.theme)

		err = addrForm.Run()
	}
	return
}

func (w *Wizard) buildConfig(
	host string, port int, path, key string, allowDiscovery bool,
	heartbeat, staleness time.Duration,
	tlsConfig config.TLS,
	healthEnabled bool, healthAddr, logLevel string,
) *config.Config {
	cfg := config.Default()

	cfg.Server.Host = host
	cfg.Server.Port = port
	cfg.Server.Path = path
	cfg.Server.Key = key
	cfg.Server.AllowDiscovery = allowDiscovery
	cfg.Server.TLS = tlsConfig

	cfg.Relay.HeartbeatInterval = heartbeat
	cfg.Relay.StalenessTimeout = staleness

	cfg.Health.Enabled = healthEnabled
	if healthEnabled {
		cfg.Health.Address = healthAddr
	}

	cfg.Log.Level = logLevel

	return cfg
}

func (w *Wizard) writeConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# PeerLink Configuration
# Generated by setup wizard

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	scheme := "ws"
	if cfg.Server.TLS.Enabled() {
		scheme = "wss"
	}

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Setup Complete!"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Config file:  %s\n", configPath)
	fmt.Printf("  Endpoint:     %s://%s%s\n", scheme, cfg.ListenAddr(), cfg.Server.Path)
	fmt.Printf("  Shared key:   %s\n", cfg.Server.Key)
	fmt.Printf("  Discovery:    %t\n", cfg.Server.AllowDiscovery)

	if cfg.Health.Enabled {
		fmt.Printf("  Health:       http://%s/health\n", cfg.Health.Address)
	}

	fmt.Println()
	fmt.Println("  To start the relay:")
	fmt.Printf("    peerlink run -c %s\n", configPath)
	fmt.Println()
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration (use forms like 5s, 1m)")
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}

func fileExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", path)
	}
	return nil
}
