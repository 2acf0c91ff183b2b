package device

import "context"

// Link is the transport used to discover and open sessions to devices.
// Implementations may block on USB or network I/O; every call honors the
// supplied context.
type Link interface {
	// ListAttached enumerates the devices currently visible on the transport.
	ListAttached(ctx context.Context) ([]AttachedDevice, error)

	// Connect opens a session to the device with the given serial. Failures
	// are returned as *ConnectError.
	Connect(ctx context.Context, serial Serial) (Device, error)
}

// Device is an open session to one physical device. A Device is owned by
// whichever component currently holds it and must not be shared
// concurrently. Close releases the session.
type Device interface {
	Serial() Serial
	Close() error

	// Status reads
	WifiStatus(ctx context.Context) (WifiStatus, error)
	HotspotStatus(ctx context.Context) (HotspotStatus, error)
	RPCEnabled(ctx context.Context) (bool, error)
	RecordingState(ctx context.Context) (RecordingState, error)
	SyncStability(ctx context.Context) (SyncStability, error)

	// Wi-Fi control
	SetHotspot(ctx context.Context, cfg HotspotConfig) error
	JoinWifi(ctx context.Context, join WifiJoin) error
	SetKeepWifiOn(ctx context.Context, keep bool) error
	ForgetWifi(ctx context.Context, ssid string) error

	// Inter-device RPC control
	SetRPCEnabled(ctx context.Context, enabled bool, iface StreamingInterface) error
	NewRPCSessionID(ctx context.Context) (string, error)

	// Recording control
	SetRecordingConfig(ctx context.Context, cfg RecordingConfig) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
}
