package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/muurk/poolctl/internal/config"
	"github.com/muurk/poolctl/internal/credentials"
	"github.com/muurk/poolctl/internal/device"
	"github.com/muurk/poolctl/internal/discovery"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/ui"
	"github.com/muurk/poolctl/internal/wifi"
	"go.uber.org/zap"
)

// Command flags
var (
	simulate    bool
	forceInit   bool
	ssidFlag    string
	openNetwork bool
	assumeYes   bool
	scanTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(discoverCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	credentialsCmd.AddCommand(credentialsShowCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsClearCmd)
}

// exitCode maps an error to the process exit status. A provisioning
// failure asks the service manager for a restart.
func exitCode(err error) int {
	if faults.Is(err, faults.ErrTypeProvisioning) {
		return device.ExitReboot
	}
	return 1
}

func loadConfig() (*config.Config, string, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return cfg, path, nil
}

// runCmd starts the daemon
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the device agent",
	Long: `Run the control loop until interrupted.

The agent acquires Wi-Fi credentials (stored, pairing, then captive portal),
connects to the broker and serves commands. If every credential source is
exhausted it exits with status 3 so the service manager restarts the device.`,
	Example: `  # Run with the installed configuration
  poolctl run

  # Run on a development machine without GPIO or Wi-Fi hardware
  poolctl run --simulate --log-level debug`,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "Use simulated pins, sensors and Wi-Fi link")
}

func runAgent(cmd *cobra.Command, args []string) error {
	// The daemon always logs, even when neither flag nor env var set a level
	if logLevel == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		if err := logging.Initialize("info"); err != nil {
			return err
		}
	}

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Info("Configuration loaded",
		zap.String("path", path),
		zap.String("device", cfg.Device.ID),
	)

	dev, err := device.Open(cfg, simulate)
	if err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dev.Run(ctx); err != nil {
		return err
	}
	logging.Info("Shut down")
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Example: `  # Write /etc/poolctl/config.yaml
  sudo poolctl config init

  # Write somewhere else
  poolctl config init --config ./poolctl.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ResolvePath(configPath)
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Println(ui.Success("Wrote " + path))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration with defaults applied. The broker password
and fallback network secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		if cfg.Broker.Password != "" {
			cfg.Broker.Password = mask
		}
		for i := range cfg.WiFi.Fallbacks {
			if cfg.WiFi.Fallbacks[i].Secret != "" {
				cfg.WiFi.Fallbacks[i].Secret = mask
			}
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Println(ui.MutedStyle.Render("# " + path))
		fmt.Print(string(data))
		return nil
	},
}

const mask = "********"

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Inspect or change the stored Wi-Fi credentials",
}

func openStore() (*credentials.Store, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return credentials.NewStore(credentials.NewFileKV(cfg.Provisioning.CredentialsFile)), cfg, nil
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored network (never the secret)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		c, err := store.Load()
		if err != nil {
			return err
		}
		if c == nil {
			fmt.Println("No credentials stored; the device will start pairing on boot.")
			return nil
		}

		security := "WPA passphrase"
		if c.Open() {
			security = "open network"
		}
		fmt.Println(ui.KeyValues(
			ui.Param{Key: "SSID", Value: c.SSID},
			ui.Param{Key: "Security", Value: security},
			ui.Param{Key: "File", Value: cfg.Provisioning.CredentialsFile},
		))
		return nil
	},
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store Wi-Fi credentials without pairing",
	Long: `Store a network for the device to join on its next start.

The secret is read from the terminal without echo, or from the first line of
standard input when it is not a terminal.`,
	Example: `  poolctl credentials set --ssid Home
  echo "secret123" | poolctl credentials set --ssid Home
  poolctl credentials set --ssid Cafe --open`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}

		c := credentials.Credentials{SSID: ssidFlag, Source: credentials.SourceStored}
		if !openNetwork {
			secret, err := readSecret("Passphrase for " + ssidFlag + ": ")
			if err != nil {
				return err
			}
			c.Secret = secret
		}

		if err := store.Save(c); err != nil {
			return err
		}
		fmt.Println(ui.Success("Stored " + c.SSID))
		return nil
	},
}

func init() {
	credentialsSetCmd.Flags().StringVar(&ssidFlag, "ssid", "", "Network name")
	credentialsSetCmd.Flags().BoolVar(&openNetwork, "open", false, "Network has no passphrase")
	_ = credentialsSetCmd.MarkFlagRequired("ssid")
}

func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read passphrase from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var credentialsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored network",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}

		if !assumeYes {
			if !ui.IsTerminal() {
				return errors.New("refusing to clear without --yes on a non-interactive stdin")
			}
			ok := ui.Confirm(os.Stdout, os.Stdin, "Clear stored credentials", []string{
				"The device forgets its network on the next start",
				"It then advertises the pairing endpoint, then the captive portal",
			})
			if !ok {
				return nil
			}
		}

		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println(ui.Success("Credentials cleared"))
		return nil
	},
}

func init() {
	credentialsClearCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "Scan for Wi-Fi networks",
	Long: `Scan with NetworkManager on the configured interface and list the
networks strongest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println(ui.NewHeader("Network scan", "poolctl networks",
			ui.Param{Key: "Interface", Value: cfg.WiFi.Interface},
		))
		fmt.Println()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		networks, err := wifi.NewNM(cfg.WiFi.Interface).Scan(ctx)
		if err != nil {
			fmt.Println(ui.Failure("Scan failed"))
			return err
		}
		if len(networks) == 0 {
			fmt.Println("No networks found.")
			return nil
		}
		fmt.Println(ui.NetworksTable(networks).Render())
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find controllers waiting to be paired",
	Long: `Browse mDNS for controllers advertising the pairing endpoint.

Each controller is listed with the WebSocket address a pairing client
should connect to.`,
	Example: `  poolctl discover
  poolctl discover --timeout 15s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var devices []*discovery.Device
		err := ui.RunScan(os.Stdout, "Scanning for controllers in pairing mode", scanTimeout, func() error {
			var err error
			devices, err = discovery.ScanForDevices(scanTimeout)
			return err
		})
		if errors.Is(err, ui.ErrScanCancelled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if len(devices) == 0 {
			fmt.Println("No controllers found.")
			fmt.Println("\nTroubleshooting:")
			fmt.Println("  - Controllers only advertise while pairing (no stored credentials)")
			fmt.Println("  - Make sure this machine is on the same network segment")
			fmt.Println("  - Try a longer --timeout")
			return nil
		}

		fmt.Println(ui.DevicesTable(devices).Render())
		fmt.Println()
		for _, d := range devices {
			fmt.Println(ui.MutedStyle.Render(d.Name + ": " + d.PairingURL()))
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Second, "How long to listen")
}
