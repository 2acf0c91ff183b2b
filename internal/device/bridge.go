package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// BridgeLink implements Link over the vendor device-control binary. Every
// operation runs one subprocess invocation that prints a JSON document on
// stdout; mutating commands print an empty object on success.
type BridgeLink struct {
	// Binary is the path to the control tool.
	Binary string
	// Args are prepended to every invocation (e.g. a --socket flag).
	Args []string
}

// NewBridgeLink creates a Link backed by the given control binary.
func NewBridgeLink(binary string, args ...string) *BridgeLink {
	return &BridgeLink{Binary: binary, Args: args}
}

// run executes one bridge command and decodes its stdout into out when
// out is non-nil. Stderr is folded into the returned error.
func (l *BridgeLink) run(ctx context.Context, out any, args ...string) error {
	full := append(append([]string{}, l.Args...), args...)
	cmd := exec.CommandContext(ctx, l.Binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running bridge command", "binary", l.Binary, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("bridge %s failed: %s: %w", args[0], msg, err)
		}
		return fmt.Errorf("bridge %s failed: %w", args[0], err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("failed to parse bridge %s output: %w", args[0], err)
	}
	return nil
}

// ListAttached enumerates devices via the bridge "list" command.
func (l *BridgeLink) ListAttached(ctx context.Context) ([]AttachedDevice, error) {
	var result struct {
		Devices []AttachedDevice `json:"devices"`
	}
	if err := l.run(ctx, &result, "list"); err != nil {
		return nil, err
	}
	return result.Devices, nil
}

// Connect opens a session to the given serial. The bridge keeps no
// per-session process state, so Connect probes the device once to verify
// it is reachable before handing out a handle.
func (l *BridgeLink) Connect(ctx context.Context, serial Serial) (Device, error) {
	d := &bridgeDevice{link: l, serial: serial}
	if _, err := d.RecordingState(ctx); err != nil {
		return nil, &ConnectError{Serial: serial, Err: err}
	}
	slog.Debug("Connected to device", "serial", serial)
	return d, nil
}

// bridgeDevice addresses one device by serial on every invocation.
type bridgeDevice struct {
	link   *BridgeLink
	serial Serial
}

func (d *bridgeDevice) Serial() Serial { return d.serial }

func (d *bridgeDevice) Close() error { return nil }

func (d *bridgeDevice) run(ctx context.Context, out any, cmd string, args ...string) error {
	full := append([]string{cmd, "--serial", string(d.serial)}, args...)
	return d.link.run(ctx, out, full...)
}

func (d *bridgeDevice) WifiStatus(ctx context.Context) (WifiStatus, error) {
	var status WifiStatus
	err := d.run(ctx, &status, "wifi-status")
	return status, err
}

func (d *bridgeDevice) HotspotStatus(ctx context.Context) (HotspotStatus, error) {
	var status HotspotStatus
	err := d.run(ctx, &status, "hotspot-status")
	return status, err
}

func (d *bridgeDevice) RPCEnabled(ctx context.Context) (bool, error) {
	var result struct {
		Enabled bool `json:"enabled"`
	}
	err := d.run(ctx, &result, "rpc-status")
	return result.Enabled, err
}

func (d *bridgeDevice) RecordingState(ctx context.Context) (RecordingState, error) {
	var result struct {
		State RecordingState `json:"state"`
	}
	err := d.run(ctx, &result, "recording-state")
	return result.State, err
}

func (d *bridgeDevice) SyncStability(ctx context.Context) (SyncStability, error) {
	var result struct {
		Stability SyncStability `json:"stability"`
	}
	err := d.run(ctx, &result, "sync-stability")
	return result.Stability, err
}

func (d *bridgeDevice) SetHotspot(ctx context.Context, cfg HotspotConfig) error {
	return d.run(ctx, nil, "hotspot-set",
		"--enabled", strconv.FormatBool(cfg.Enabled),
		"--use-5ghz", strconv.FormatBool(cfg.Use5GHz),
		"--country-code", cfg.CountryCode,
	)
}

func (d *bridgeDevice) JoinWifi(ctx context.Context, join WifiJoin) error {
	return d.run(ctx, nil, "wifi-join",
		"--ssid", join.SSID,
		"--passphrase", join.Passphrase,
		"--auth", string(join.Auth),
		"--hidden", strconv.FormatBool(join.Hidden),
		"--username", join.Username,
		"--disable-other-networks", strconv.FormatBool(join.DisableOtherNetworks),
		"--skip-internet-check", strconv.FormatBool(join.SkipInternetCheck),
	)
}

func (d *bridgeDevice) SetKeepWifiOn(ctx context.Context, keep bool) error {
	return d.run(ctx, nil, "wifi-keep-on", "--enabled", strconv.FormatBool(keep))
}

func (d *bridgeDevice) ForgetWifi(ctx context.Context, ssid string) error {
	return d.run(ctx, nil, "wifi-forget", "--ssid", ssid)
}

func (d *bridgeDevice) SetRPCEnabled(ctx context.Context, enabled bool, iface StreamingInterface) error {
	return d.run(ctx, nil, "rpc-set",
		"--enabled", strconv.FormatBool(enabled),
		"--interface", string(iface),
	)
}

func (d *bridgeDevice) NewRPCSessionID(ctx context.Context) (string, error) {
	var result struct {
		SessionID string `json:"session_id"`
	}
	err := d.run(ctx, &result, "rpc-new-session")
	return result.SessionID, err
}

func (d *bridgeDevice) SetRecordingConfig(ctx context.Context, cfg RecordingConfig) error {
	return d.run(ctx, nil, "recording-config",
		"--profile", cfg.Profile,
		"--time-sync-mode", string(cfg.TimeSyncMode),
	)
}

func (d *bridgeDevice) StartRecording(ctx context.Context) error {
	return d.run(ctx, nil, "recording-start")
}

func (d *bridgeDevice) StopRecording(ctx context.Context) error {
	return d.run(ctx, nil, "recording-stop")
}
