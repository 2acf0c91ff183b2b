package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/wearablelab/ticsync/internal/config"
	"github.com/wearablelab/ticsync/internal/device"
	"github.com/wearablelab/ticsync/internal/recordings"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "ticsync",
	Short: "Time-synchronized recording across wearable capture devices",
	Long: `ticsync coordinates several wearable capture devices so they record
under a common hardware-synchronized clock: one device acts as the time
sync server and hosts a private Wi-Fi hotspot, the others join it as
sync clients.

A typical session is started with 'ticsync start', torn down with
'ticsync cleanup', and its recordings are retrieved with
'ticsync recordings'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ticsync.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(configCmd)
}

// newLink builds the device link every command talks through.
func newLink() *device.BridgeLink {
	return device.NewBridgeLink(cfg.Device.BridgeBinary, cfg.Device.BridgeArgs...)
}

// newRecordingsManager builds the adb-backed recording manager.
func newRecordingsManager() *recordings.Manager {
	return &recordings.Manager{
		Runner:     &recordings.ExecRunner{ADBPath: cfg.Device.ADBPath},
		ModelMatch: cfg.Device.ModelMatch,
	}
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}
