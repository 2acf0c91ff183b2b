package ticsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wearablelab/ticsync/internal/device"
)

// Teardown always restores the hotspot to the same non-softAP state,
// regardless of how it was brought up. That keeps the disable call
// idempotent even when the session's country code is unknown.
var hotspotTeardown = device.HotspotConfig{
	Enabled:     false,
	Use5GHz:     true,
	CountryCode: "US",
}

// CleanupCoordinator reverses every orchestration side effect. Both paths
// are idempotent: re-running them against an already-clean device is a
// no-op, not an error.
type CleanupCoordinator struct {
	Link device.Link
}

// Cleanup is the known-role path, used when the server device was
// identified. Clients that are still on the server hotspot forget it and
// stop keeping Wi-Fi on; the server drops RPC and its hotspot. The caller
// retains ownership of the handles.
func (c *CleanupCoordinator) Cleanup(ctx context.Context, server device.Device, clients map[device.Serial]device.Device) error {
	hotspot, err := server.HotspotStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read server hotspot status: %w", err)
	}

	for serial, dev := range clients {
		if err := c.cleanupClient(ctx, dev, hotspot.SSID); err != nil {
			return fmt.Errorf("failed to clean up client %s: %w", serial, err)
		}
	}
	return c.cleanupServer(ctx, server)
}

func (c *CleanupCoordinator) cleanupClient(ctx context.Context, dev device.Device, hotspotSSID string) error {
	wifi, err := dev.WifiStatus(ctx)
	if err != nil {
		return err
	}
	if wifi.SSID != hotspotSSID {
		return nil
	}
	if err := dev.SetKeepWifiOn(ctx, false); err != nil {
		return err
	}
	if err := dev.ForgetWifi(ctx, hotspotSSID); err != nil {
		return err
	}
	slog.Info("Client left session hotspot", "serial", dev.Serial(), "ssid", hotspotSSID)
	return nil
}

func (c *CleanupCoordinator) cleanupServer(ctx context.Context, server device.Device) error {
	rpcEnabled, err := server.RPCEnabled(ctx)
	if err != nil {
		return err
	}
	if rpcEnabled {
		slog.Info("Inter-device RPC enabled, disabling it", "serial", server.Serial())
		if err := server.SetRPCEnabled(ctx, false, device.InterfaceWifiSoftAP); err != nil {
			return err
		}
	}
	// Disabled unconditionally so a second run stays a no-op.
	if err := server.SetHotspot(ctx, hotspotTeardown); err != nil {
		return err
	}
	slog.Info("Server hotspot disabled", "serial", server.Serial())
	return nil
}

// GenericCleanup is the safety net when role information could not be
// recovered: every currently attached device gets one uniform cleanup
// pass, in listing order, without assuming a particular role. Per-device
// failures do not stop the sweep; they are joined into the returned
// error.
func (c *CleanupCoordinator) GenericCleanup(ctx context.Context) error {
	attached, err := c.Link.ListAttached(ctx)
	if err != nil {
		return fmt.Errorf("failed to list attached devices: %w", err)
	}

	var errs []error
	for _, att := range attached {
		if err := c.genericDeviceCleanup(ctx, att.Serial); err != nil {
			slog.Error("Generic cleanup failed for device", "serial", att.Serial, "error", err)
			errs = append(errs, fmt.Errorf("device %s: %w", att.Serial, err))
			continue
		}
		slog.Info("Generic cleanup done", "serial", att.Serial)
	}
	return errors.Join(errs...)
}

func (c *CleanupCoordinator) genericDeviceCleanup(ctx context.Context, serial device.Serial) error {
	dev, err := c.Link.Connect(ctx, serial)
	if err != nil {
		return err
	}
	defer dev.Close()

	state, err := dev.RecordingState(ctx)
	if err != nil {
		return err
	}
	if state == device.RecordingActive {
		if err := dev.StopRecording(ctx); err != nil {
			return err
		}
	}
	if err := dev.SetKeepWifiOn(ctx, false); err != nil {
		return err
	}
	rpcEnabled, err := dev.RPCEnabled(ctx)
	if err != nil {
		return err
	}
	if rpcEnabled {
		slog.Info("Inter-device RPC enabled, disabling it", "serial", serial)
		if err := dev.SetRPCEnabled(ctx, false, device.InterfaceWifiSoftAP); err != nil {
			return err
		}
	}
	return dev.SetHotspot(ctx, hotspotTeardown)
}
