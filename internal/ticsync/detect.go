package ticsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wearablelab/ticsync/internal/device"
)

// defaultDetectPolicy bounds role classification to 10 passes with a
// one-second pause between them.
var defaultDetectPolicy = PollPolicy{Interval: time.Second, MaxAttempts: 10}

// Detector classifies the attached devices into one sync server and the
// remaining sync clients by reading each device's RPC-enabled flag. The
// flag survives USB detachment, which is what makes it usable as the role
// marker during cleanup.
type Detector struct {
	Link  device.Link
	Retry PollPolicy
}

// Detect classifies exactly totalDevices attached devices and returns a
// plan assigning profile to every device. It fails with
// ErrDeviceCountMismatch before any per-device I/O if the attached count
// is wrong, and with ErrDetectionTimeout if classification does not
// converge within the retry budget. Partial classification is discarded
// on timeout. Every session opened during classification is closed before
// Detect returns.
func (d *Detector) Detect(ctx context.Context, totalDevices int, profile string) (*SessionPlan, error) {
	if totalDevices < 2 {
		return nil, fmt.Errorf("total device count must be at least 2, got %d", totalDevices)
	}

	attached, err := d.Link.ListAttached(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list attached devices: %w", err)
	}
	if len(attached) != totalDevices {
		return nil, fmt.Errorf("%w: %d attached, %d requested",
			ErrDeviceCountMismatch, len(attached), totalDevices)
	}

	roles := make(map[device.Serial]Role, totalDevices)
	var serverSerial device.Serial
	var clientSerials []device.Serial

	op := func() error {
		for _, att := range attached {
			if _, done := roles[att.Serial]; done {
				continue
			}
			role, err := d.classify(ctx, att.Serial)
			if err != nil {
				slog.Debug("Classification attempt failed", "serial", att.Serial, "error", err)
				continue
			}
			roles[att.Serial] = role
			if role == RoleServer {
				serverSerial = att.Serial
			} else {
				clientSerials = append(clientSerials, att.Serial)
			}
			slog.Info("Classified device", "serial", att.Serial, "role", role)
		}
		if serverSerial != "" && len(clientSerials) == totalDevices-1 {
			return nil
		}
		return ErrDetectionTimeout
	}

	if err := d.Retry.withDefaults(defaultDetectPolicy).Run(ctx, op); err != nil {
		return nil, err
	}

	plan := &SessionPlan{Server: Assignment{Serial: serverSerial, Profile: profile}}
	for _, serial := range clientSerials {
		plan.Clients = append(plan.Clients, Assignment{Serial: serial, Profile: profile})
	}
	slog.Info("Role detection complete", "server", serverSerial, "clients", len(plan.Clients))
	return plan, nil
}

// classify opens a session, reads the RPC-enabled flag and closes the
// session again.
func (d *Detector) classify(ctx context.Context, serial device.Serial) (Role, error) {
	dev, err := d.Link.Connect(ctx, serial)
	if err != nil {
		return RoleUnknown, err
	}
	defer dev.Close()

	enabled, err := dev.RPCEnabled(ctx)
	if err != nil {
		return RoleUnknown, err
	}
	if enabled {
		return RoleServer, nil
	}
	return RoleClient, nil
}

// InferPlan builds a session plan from the attached device list alone:
// the first attached device becomes the server and the rest become
// clients, all recording with the shared profile. Used when a session is
// started fresh and no device carries role state yet.
func InferPlan(ctx context.Context, link device.Link, totalDevices int, profile string) (*SessionPlan, error) {
	if totalDevices < 2 {
		return nil, fmt.Errorf("total device count must be at least 2, got %d", totalDevices)
	}

	attached, err := link.ListAttached(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list attached devices: %w", err)
	}
	if len(attached) != totalDevices {
		return nil, fmt.Errorf("%w: %d attached, %d requested",
			ErrDeviceCountMismatch, len(attached), totalDevices)
	}

	plan := &SessionPlan{Server: Assignment{Serial: attached[0].Serial, Profile: profile}}
	for _, att := range attached[1:] {
		plan.Clients = append(plan.Clients, Assignment{Serial: att.Serial, Profile: profile})
	}
	slog.Info("Using attached devices for session", "server", plan.Server.Serial, "clients", len(plan.Clients))
	return plan, nil
}
