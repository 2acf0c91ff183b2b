package ticsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wearablelab/ticsync/internal/device"
)

// Hotspots are always brought up on the 5 GHz band.
const hotspotUse5GHz = true

// defaultStabilityPolicy re-polls client stability every five seconds,
// unbounded. The operator aborts via ctx if convergence never happens.
var defaultStabilityPolicy = PollPolicy{Interval: 5 * time.Second}

var errNotStable = errors.New("clients still converging")

// StartOptions carries the per-run orchestration parameters.
type StartOptions struct {
	CountryCode string
}

// SessionRecord captures everything a later cleanup run needs to know
// about a started session.
type SessionRecord struct {
	RunID       string       `yaml:"run_id"`
	StartedAt   time.Time    `yaml:"started_at"`
	CountryCode string       `yaml:"country_code"`
	HotspotSSID string       `yaml:"hotspot_ssid"`
	Server      Assignment   `yaml:"server"`
	Clients     []Assignment `yaml:"clients"`
}

// Orchestrator drives the end-to-end session workflow: hotspot and RPC
// bring-up on the server, ordered recording starts, and the stability
// wait. Any device I/O failure during setup aborts the run; the operator
// is then expected to invoke cleanup.
type Orchestrator struct {
	Link          device.Link
	StabilityPoll PollPolicy
}

// Start executes the session plan and blocks until every client reports
// stable clock sync. The returned record describes the running session.
func (o *Orchestrator) Start(ctx context.Context, plan *SessionPlan, opts StartOptions) (*SessionRecord, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session plan: %w", err)
	}

	var open []device.Device
	defer func() {
		for _, dev := range open {
			dev.Close()
		}
	}()

	// The server's hotspot and RPC session must exist before any client
	// can join or sync to it.
	server, err := o.Link.Connect(ctx, plan.Server.Serial)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server device: %w", err)
	}
	open = append(open, server)

	credentials, err := o.setupServer(ctx, server, plan.Server, opts)
	if err != nil {
		return nil, err
	}

	clientHandles := make([]device.Device, 0, len(plan.Clients))
	for _, assignment := range plan.Clients {
		dev, err := o.setupClient(ctx, assignment, credentials)
		if err != nil {
			return nil, err
		}
		open = append(open, dev)
		clientHandles = append(clientHandles, dev)
	}

	slog.Info("Waiting for clients to reach stable time sync, keep all devices plugged in")
	if err := o.waitForStability(ctx, clientHandles); err != nil {
		return nil, err
	}
	slog.Info("All devices ready for synchronized data collection, devices can be unplugged")

	record := &SessionRecord{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		CountryCode: opts.CountryCode,
		HotspotSSID: credentials.SSID,
		Server:      plan.Server,
		Clients:     plan.Clients,
	}
	return record, nil
}

// setupServer enables the hotspot and RPC channel, configures the
// sync-server recording and starts it. The returned hotspot status holds
// the credentials every client joins with.
func (o *Orchestrator) setupServer(ctx context.Context, server device.Device, assignment Assignment, opts StartOptions) (device.HotspotStatus, error) {
	var none device.HotspotStatus

	err := server.SetHotspot(ctx, device.HotspotConfig{
		Enabled:     true,
		Use5GHz:     hotspotUse5GHz,
		CountryCode: opts.CountryCode,
	})
	if err != nil {
		return none, fmt.Errorf("failed to enable server hotspot: %w", err)
	}

	rpcEnabled, err := server.RPCEnabled(ctx)
	if err != nil {
		return none, fmt.Errorf("failed to read server RPC state: %w", err)
	}
	if !rpcEnabled {
		slog.Info("Inter-device RPC is not enabled, enabling it", "serial", server.Serial())
		if err := server.SetRPCEnabled(ctx, true, device.InterfaceWifiSoftAP); err != nil {
			return none, fmt.Errorf("failed to enable server RPC: %w", err)
		}
	} else {
		// Re-running against an already-initialized server: mint a fresh
		// RPC session id instead of leaking the old one.
		sessionID, err := server.NewRPCSessionID(ctx)
		if err != nil {
			return none, fmt.Errorf("failed to mint RPC session id: %w", err)
		}
		slog.Info("Retrieved a new RPC session id", "session_id", sessionID)
	}

	credentials, err := server.HotspotStatus(ctx)
	if err != nil {
		return none, fmt.Errorf("failed to read server hotspot status: %w", err)
	}
	slog.Info("Server hotspot is up", "ssid", credentials.SSID)

	err = server.SetRecordingConfig(ctx, device.RecordingConfig{
		Profile:      assignment.Profile,
		TimeSyncMode: device.TimeSyncServer,
	})
	if err != nil {
		return none, fmt.Errorf("failed to configure server recording: %w", err)
	}

	slog.Info("Starting server recording", "serial", assignment.Serial, "profile", assignment.Profile)
	if err := server.StartRecording(ctx); err != nil {
		return none, fmt.Errorf("failed to start server recording: %w", err)
	}
	state, err := server.RecordingState(ctx)
	if err != nil {
		return none, fmt.Errorf("failed to read server recording state: %w", err)
	}
	slog.Info("Server recording state", "serial", assignment.Serial, "state", state)

	return credentials, nil
}

// setupClient connects one client, joins it to the server hotspot if it
// is not already on it, configures the sync-client recording and starts
// it. The handle stays open for the stability wait.
func (o *Orchestrator) setupClient(ctx context.Context, assignment Assignment, credentials device.HotspotStatus) (device.Device, error) {
	dev, err := o.Link.Connect(ctx, assignment.Serial)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to client device: %w", err)
	}

	wifi, err := dev.WifiStatus(ctx)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to read client wifi status: %w", err)
	}
	if !wifi.Enabled || wifi.SSID != credentials.SSID {
		slog.Info("Joining client to server hotspot", "serial", assignment.Serial, "ssid", credentials.SSID)
		err := dev.JoinWifi(ctx, device.WifiJoin{
			SSID:                 credentials.SSID,
			Passphrase:           credentials.Passphrase,
			Auth:                 device.WifiAuthWPA,
			Hidden:               false,
			Username:             "",
			DisableOtherNetworks: true,
			// Private offline link, captive-portal probes would only stall.
			SkipInternetCheck: true,
		})
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("failed to join client %s to hotspot: %w", assignment.Serial, err)
		}
		// Keeps the client on the hotspot after it is unplugged from USB.
		if err := dev.SetKeepWifiOn(ctx, true); err != nil {
			dev.Close()
			return nil, fmt.Errorf("failed to keep wifi on for client %s: %w", assignment.Serial, err)
		}
	}

	err = dev.SetRecordingConfig(ctx, device.RecordingConfig{
		Profile:      assignment.Profile,
		TimeSyncMode: device.TimeSyncClient,
	})
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to configure client recording: %w", err)
	}

	slog.Info("Starting client recording", "serial", assignment.Serial, "profile", assignment.Profile)
	if err := dev.StartRecording(ctx); err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to start client recording: %w", err)
	}
	return dev, nil
}

// waitForStability re-polls every client until all of them report stable
// sync. A single converging client keeps the wait active.
func (o *Orchestrator) waitForStability(ctx context.Context, clients []device.Device) error {
	op := func() error {
		for _, dev := range clients {
			stability, err := dev.SyncStability(ctx)
			if err != nil {
				slog.Debug("Stability read failed", "serial", dev.Serial(), "error", err)
				return err
			}
			if stability != device.StabilityStable {
				slog.Debug("Client still converging", "serial", dev.Serial())
				return errNotStable
			}
		}
		return nil
	}
	return o.StabilityPoll.withDefaults(defaultStabilityPolicy).Run(ctx, op)
}
