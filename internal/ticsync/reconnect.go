package ticsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wearablelab/ticsync/internal/device"
)

// defaultReconnectPolicy paces the reattach passes. The loop itself is
// unbounded: the operator is expected to physically replug devices, and
// cancellation is the only other way out.
var defaultReconnectPolicy = PollPolicy{Interval: 2 * time.Second}

var errNotReconnected = errors.New("devices still awaiting reconnection")

// ReconnectSupervisor re-establishes sessions to a fixed set of serials
// after the devices have been unplugged, stopping any recording still in
// progress on each one. Clients are reconnected strictly before the
// server so the server's hotspot stays available for as long as possible
// while clients reattach.
type ReconnectSupervisor struct {
	Link device.Link
	Poll PollPolicy
}

// ReconnectAll blocks until every client and then the server has been
// reconnected, or ctx is cancelled. Individual connect failures are not
// terminal; the failing serial is retried on the next pass. Every handle
// obtained is returned to the caller.
func (r *ReconnectSupervisor) ReconnectAll(ctx context.Context, serverSerial device.Serial, clientSerials []device.Serial) (device.Device, map[device.Serial]device.Device, error) {
	var server device.Device
	clients := make(map[device.Serial]device.Device, len(clientSerials))

	op := func() error {
		for _, serial := range clientSerials {
			if _, done := clients[serial]; done {
				continue
			}
			dev, err := r.connectAndStopRecording(ctx, serial)
			if err != nil {
				slog.Debug("Client not reachable yet", "serial", serial, "error", err)
				continue
			}
			clients[serial] = dev
			slog.Info("Client device reconnected", "serial", serial)
		}
		if len(clients) != len(clientSerials) {
			return errNotReconnected
		}

		// All clients are back; only now take down the server's session.
		if server == nil {
			dev, err := r.connectAndStopRecording(ctx, serverSerial)
			if err != nil {
				slog.Debug("Server not reachable yet", "serial", serverSerial, "error", err)
				return errNotReconnected
			}
			server = dev
			slog.Info("Server device reconnected", "serial", serverSerial)
		}
		return nil
	}

	if err := r.Poll.withDefaults(defaultReconnectPolicy).Run(ctx, op); err != nil {
		return server, clients, err
	}
	return server, clients, nil
}

// connectAndStopRecording opens a session and stops the device's
// recording if one is still running. On any failure after connecting the
// session is closed and the serial stays pending.
func (r *ReconnectSupervisor) connectAndStopRecording(ctx context.Context, serial device.Serial) (device.Device, error) {
	dev, err := r.Link.Connect(ctx, serial)
	if err != nil {
		return nil, err
	}
	state, err := dev.RecordingState(ctx)
	if err != nil {
		dev.Close()
		return nil, err
	}
	if state == device.RecordingActive {
		if err := dev.StopRecording(ctx); err != nil {
			dev.Close()
			return nil, err
		}
		slog.Info("Stopped recording", "serial", serial)
	}
	return dev, nil
}
