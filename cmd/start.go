package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wearablelab/ticsync/internal/session"
	"github.com/wearablelab/ticsync/internal/ticsync"

	"github.com/spf13/cobra"
)

var (
	startServer  string
	startClients []string
	startDevices int
	startProfile string
	startCountry string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a time-synchronized recording session",
	Long: `Start recording on every device under a shared hardware clock.

Devices are assigned either explicitly:

  ticsync start --server 1WM001=profile9 --client 1WM002=profile9 --client 1WM003=profile12

or inferred from the attached devices, with a shared profile:

  ticsync start --devices 3 --profile profile9

The first form and the second form are mutually exclusive. The command
blocks until every client reports stable clock sync; once it prints the
ready message, the devices can be unplugged from USB.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := buildStartPlan(cmd)
		if err != nil {
			return err
		}

		country := startCountry
		if country == "" {
			country = cfg.Hotspot.CountryCode
		}

		// An interrupt during the stability wait is safe: cleanup
		// converges the devices from any partially-started state.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orchestrator := &ticsync.Orchestrator{
			Link:          newLink(),
			StabilityPoll: ticsync.PollPolicy{Interval: cfg.Poll.StabilityInterval},
		}

		slog.Info("Starting synchronized session",
			"server", plan.Server.Serial, "clients", len(plan.Clients), "country_code", country)
		record, err := orchestrator.Start(ctx, plan, ticsync.StartOptions{CountryCode: country})
		if err != nil {
			return fmt.Errorf("failed to start session (run 'ticsync cleanup' before retrying): %w", err)
		}

		if err := session.Save(cfg.Output.Directory, record); err != nil {
			slog.Warn("Could not persist session record, cleanup will need explicit serials", "error", err)
		}

		fmt.Printf("Session %s is ready for synchronized data collection.\n", record.RunID)
		fmt.Println("All devices can now be safely unplugged from USB.")
		return nil
	},
}

// buildStartPlan resolves the two invocation shapes into a session plan.
func buildStartPlan(cmd *cobra.Command) (*ticsync.SessionPlan, error) {
	explicit := startServer != "" || len(startClients) > 0
	inferred := startDevices != 0

	switch {
	case explicit && inferred:
		return nil, ticsync.ErrConfigConflict
	case explicit:
		if startServer == "" || len(startClients) == 0 {
			return nil, fmt.Errorf("--server and --client can only be specified together")
		}
		server, err := parseServerFlag(startServer)
		if err != nil {
			return nil, err
		}
		plan := &ticsync.SessionPlan{Server: server}
		for _, c := range startClients {
			assignment, err := ticsync.ParseAssignment(c)
			if err != nil {
				return nil, err
			}
			plan.Clients = append(plan.Clients, assignment)
		}
		if err := plan.Validate(); err != nil {
			return nil, err
		}
		return plan, nil
	case inferred:
		profile := startProfile
		if profile == "" {
			profile = cfg.Recording.Profile
		}
		return ticsync.InferPlan(cmd.Context(), newLink(), startDevices, profile)
	default:
		return nil, fmt.Errorf("specify either --server/--client or --devices")
	}
}

func parseServerFlag(value string) (ticsync.Assignment, error) {
	assignment, err := ticsync.ParseAssignment(value)
	if err != nil {
		return ticsync.Assignment{}, fmt.Errorf("invalid --server value: %w", err)
	}
	return assignment, nil
}

func init() {
	startCmd.Flags().StringVar(&startServer, "server", "", "serial=profile of the sync server device")
	startCmd.Flags().StringArrayVar(&startClients, "client", nil, "serial=profile of a sync client device (repeatable)")
	startCmd.Flags().IntVarP(&startDevices, "devices", "n", 0, "total number of attached devices to record with")
	startCmd.Flags().StringVarP(&startProfile, "profile", "p", "", "shared recording profile for --devices mode (default from config)")
	startCmd.Flags().StringVar(&startCountry, "country-code", "", "hotspot country code (default from config)")
}
