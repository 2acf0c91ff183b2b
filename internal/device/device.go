package device

import "fmt"

// Serial uniquely identifies a physical device. It is stable across
// USB detach/reattach cycles.
type Serial string

// AttachedDevice describes one device currently visible on the transport.
type AttachedDevice struct {
	Serial  Serial `json:"serial"`
	Display string `json:"display"`
}

// WifiStatus is the device's current Wi-Fi client state.
type WifiStatus struct {
	Enabled bool   `json:"enabled"`
	SSID    string `json:"ssid"`
}

// HotspotStatus describes the device-hosted access point. When a device
// enables its hotspot, SSID and Passphrase are the credentials the other
// devices use to join it.
type HotspotStatus struct {
	Enabled    bool   `json:"enabled"`
	SSID       string `json:"ssid"`
	Passphrase string `json:"passphrase"`
}

// RecordingState reports whether a device is currently recording.
type RecordingState string

const (
	RecordingIdle   RecordingState = "idle"
	RecordingActive RecordingState = "recording"
)

// SyncStability is a client-reported condition meaning its clock offset
// relative to the sync server has converged within tolerance.
type SyncStability string

const (
	StabilityConverging SyncStability = "converging"
	StabilityStable     SyncStability = "stable"
)

// TimeSyncMode selects which side of the clock-sync protocol a recording
// participates in.
type TimeSyncMode string

const (
	TimeSyncOff    TimeSyncMode = "off"
	TimeSyncServer TimeSyncMode = "sync-server"
	TimeSyncClient TimeSyncMode = "sync-client"
)

// WifiAuth is the authentication type used when joining a network.
type WifiAuth string

const (
	WifiAuthOpen WifiAuth = "open"
	WifiAuthWPA  WifiAuth = "wpa"
)

// StreamingInterface names the transport the inter-device RPC channel
// runs over.
type StreamingInterface string

const InterfaceWifiSoftAP StreamingInterface = "wifi-softap"

// RecordingConfig configures a device's next recording.
type RecordingConfig struct {
	Profile      string
	TimeSyncMode TimeSyncMode
}

// HotspotConfig is passed to SetHotspot to enable or disable the
// device-hosted access point.
type HotspotConfig struct {
	Enabled     bool
	Use5GHz     bool
	CountryCode string
}

// WifiJoin carries every parameter of a join-network request.
type WifiJoin struct {
	SSID                 string
	Passphrase           string
	Auth                 WifiAuth
	Hidden               bool
	Username             string
	DisableOtherNetworks bool
	SkipInternetCheck    bool
}

// ConnectError reports a failed attempt to open a session to a device.
type ConnectError struct {
	Serial Serial
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to device %s: %v", e.Serial, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
