package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wearablelab/ticsync/internal/device"
	"github.com/wearablelab/ticsync/internal/session"
	"github.com/wearablelab/ticsync/internal/ticsync"

	"github.com/spf13/cobra"
)

var (
	cleanupServer  string
	cleanupClients []string
	cleanupDevices int
	cleanupYes     bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Tear down a synchronized session and restore all devices",
	Long: `Reverse everything 'ticsync start' set up: stop recordings, take
clients off the session hotspot, disable the server's hotspot and the
inter-device RPC channel.

Roles are recovered, in order of preference, from explicit flags
(--server/--client serials), from the persisted session record, or by
probing the attached devices (--devices N). When role detection fails,
every attached device gets a uniform generic cleanup instead.

Cleanup is idempotent; running it against already-clean devices changes
nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		explicit := cleanupServer != "" || len(cleanupClients) > 0
		if explicit && cleanupDevices != 0 {
			return ticsync.ErrConfigConflict
		}
		if explicit && (cleanupServer == "" || len(cleanupClients) == 0) {
			return fmt.Errorf("--server and --client can only be specified together")
		}

		fmt.Println("Plug in all session devices again for cleanup.")
		if !cleanupYes {
			fmt.Print("Then press Enter to start the cleanup: ")
			if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
				return fmt.Errorf("aborted: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		link := newLink()
		coordinator := &ticsync.CleanupCoordinator{Link: link}

		serverSerial, clientSerials, err := resolveRoles(cmd, link)
		if errors.Is(err, ticsync.ErrDetectionTimeout) {
			slog.Warn("Could not identify the server device, falling back to generic cleanup")
			if err := coordinator.GenericCleanup(ctx); err != nil {
				return err
			}
			fmt.Println("Generic cleanup finished.")
			return nil
		}
		if err != nil {
			return err
		}

		supervisor := &ticsync.ReconnectSupervisor{
			Link: link,
			Poll: ticsync.PollPolicy{Interval: cfg.Poll.ReconnectInterval},
		}
		slog.Info("Waiting for all devices to be reconnected",
			"server", serverSerial, "clients", len(clientSerials))
		server, clients, err := supervisor.ReconnectAll(ctx, serverSerial, clientSerials)
		if err != nil {
			return fmt.Errorf("reconnect interrupted: %w", err)
		}
		defer func() {
			server.Close()
			for _, dev := range clients {
				dev.Close()
			}
		}()

		fmt.Println("All devices reconnected, keep them plugged in. Performing cleanup.")
		if err := coordinator.Cleanup(ctx, server, clients); err != nil {
			return err
		}

		if err := session.Remove(cfg.Output.Directory); err != nil {
			slog.Warn("Could not remove session record", "error", err)
		}
		fmt.Println("Cleanup finished successfully.")
		return nil
	},
}

// resolveRoles determines which serial was the server and which were
// clients, using flags, the persisted session record, or detection.
func resolveRoles(cmd *cobra.Command, link device.Link) (device.Serial, []device.Serial, error) {
	if cleanupServer != "" {
		clients := make([]device.Serial, 0, len(cleanupClients))
		for _, c := range cleanupClients {
			clients = append(clients, device.Serial(c))
		}
		return device.Serial(cleanupServer), clients, nil
	}

	record, err := session.Load(cfg.Output.Directory)
	if err != nil {
		return "", nil, err
	}
	if record != nil {
		slog.Info("Recovered roles from session record", "run_id", record.RunID)
		clients := make([]device.Serial, 0, len(record.Clients))
		for _, c := range record.Clients {
			clients = append(clients, c.Serial)
		}
		return record.Server.Serial, clients, nil
	}

	if cleanupDevices == 0 {
		return "", nil, fmt.Errorf("no session record found; specify --server/--client or --devices")
	}

	detector := &ticsync.Detector{
		Link: link,
		Retry: ticsync.PollPolicy{
			Interval:    cfg.Poll.DetectInterval,
			MaxAttempts: cfg.Poll.DetectAttempts,
		},
	}
	plan, err := detector.Detect(cmd.Context(), cleanupDevices, cfg.Recording.Profile)
	if err != nil {
		return "", nil, err
	}
	return plan.Server.Serial, plan.ClientSerials(), nil
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupServer, "server", "", "serial of the sync server device")
	cleanupCmd.Flags().StringArrayVar(&cleanupClients, "client", nil, "serial of a sync client device (repeatable)")
	cleanupCmd.Flags().IntVarP(&cleanupDevices, "devices", "n", 0, "total number of attached session devices, for role detection")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "skip the reconnect confirmation prompt")
}
