package ticsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wearablelab/ticsync/internal/device"
)

// fakeTimer satisfies backoff.Timer and fires immediately, so every
// polling loop in the package terminates without real sleeps. The
// optional onTick hook runs before the tick is delivered, letting a test
// mutate the fake link between passes.
type fakeTimer struct {
	ch     chan time.Time
	ticks  int
	onTick func(tick int)
}

func newFakeTimer(onTick func(tick int)) *fakeTimer {
	return &fakeTimer{ch: make(chan time.Time, 1), onTick: onTick}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.ticks++
	if t.onTick != nil {
		t.onTick(t.ticks)
	}
	t.ch <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

// fakeDeviceState is the mutable state behind one fake device.
type fakeDeviceState struct {
	serial     device.Serial
	attached   bool
	rpcEnabled bool
	recording  device.RecordingState
	wifi       device.WifiStatus
	hotspot    device.HotspotStatus
	keepWifiOn bool
	stability  device.SyncStability

	// remaining Connect attempts that fail before one succeeds
	connectFailures int

	recordingProfile string
	timeSyncMode     device.TimeSyncMode
	forgotten        []string
	sessionIDs       int
	openHandles      int
}

// fakeLink is an in-memory Link with scriptable device state.
type fakeLink struct {
	mu       sync.Mutex
	devices  map[device.Serial]*fakeDeviceState
	order    []device.Serial // listing order
	connects []device.Serial // successful connects, in order
}

func newFakeLink() *fakeLink {
	return &fakeLink{devices: make(map[device.Serial]*fakeDeviceState)}
}

func (l *fakeLink) addDevice(serial device.Serial, mutate func(*fakeDeviceState)) *fakeDeviceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := &fakeDeviceState{
		serial:    serial,
		attached:  true,
		recording: device.RecordingIdle,
		stability: device.StabilityConverging,
	}
	if mutate != nil {
		mutate(st)
	}
	l.devices[serial] = st
	l.order = append(l.order, serial)
	return st
}

func (l *fakeLink) state(serial device.Serial) *fakeDeviceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.devices[serial]
}

func (l *fakeLink) connectLog() []device.Serial {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]device.Serial{}, l.connects...)
}

func (l *fakeLink) openHandleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, st := range l.devices {
		n += st.openHandles
	}
	return n
}

func (l *fakeLink) ListAttached(ctx context.Context) ([]device.AttachedDevice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var attached []device.AttachedDevice
	for _, serial := range l.order {
		if l.devices[serial].attached {
			attached = append(attached, device.AttachedDevice{Serial: serial, Display: "fake"})
		}
	}
	return attached, nil
}

func (l *fakeLink) Connect(ctx context.Context, serial device.Serial) (device.Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.devices[serial]
	if !ok || !st.attached {
		return nil, &device.ConnectError{Serial: serial, Err: fmt.Errorf("device not attached")}
	}
	if st.connectFailures > 0 {
		st.connectFailures--
		return nil, &device.ConnectError{Serial: serial, Err: fmt.Errorf("transient connect failure")}
	}
	st.openHandles++
	l.connects = append(l.connects, serial)
	return &fakeDevice{link: l, st: st}, nil
}

type fakeDevice struct {
	link *fakeLink
	st   *fakeDeviceState
}

func (d *fakeDevice) locked(fn func()) {
	d.link.mu.Lock()
	defer d.link.mu.Unlock()
	fn()
}

func (d *fakeDevice) Serial() device.Serial { return d.st.serial }

func (d *fakeDevice) Close() error {
	d.locked(func() { d.st.openHandles-- })
	return nil
}

func (d *fakeDevice) WifiStatus(ctx context.Context) (device.WifiStatus, error) {
	var status device.WifiStatus
	d.locked(func() { status = d.st.wifi })
	return status, nil
}

func (d *fakeDevice) HotspotStatus(ctx context.Context) (device.HotspotStatus, error) {
	var status device.HotspotStatus
	d.locked(func() { status = d.st.hotspot })
	return status, nil
}

func (d *fakeDevice) RPCEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	d.locked(func() { enabled = d.st.rpcEnabled })
	return enabled, nil
}

func (d *fakeDevice) RecordingState(ctx context.Context) (device.RecordingState, error) {
	var state device.RecordingState
	d.locked(func() { state = d.st.recording })
	return state, nil
}

func (d *fakeDevice) SyncStability(ctx context.Context) (device.SyncStability, error) {
	var stability device.SyncStability
	d.locked(func() { stability = d.st.stability })
	return stability, nil
}

func (d *fakeDevice) SetHotspot(ctx context.Context, cfg device.HotspotConfig) error {
	d.locked(func() {
		d.st.hotspot.Enabled = cfg.Enabled
		if cfg.Enabled {
			d.st.hotspot.SSID = "hotspot-" + string(d.st.serial)
			d.st.hotspot.Passphrase = "pass-" + string(d.st.serial)
		}
	})
	return nil
}

func (d *fakeDevice) JoinWifi(ctx context.Context, join device.WifiJoin) error {
	d.locked(func() {
		d.st.wifi = device.WifiStatus{Enabled: true, SSID: join.SSID}
	})
	return nil
}

func (d *fakeDevice) SetKeepWifiOn(ctx context.Context, keep bool) error {
	d.locked(func() { d.st.keepWifiOn = keep })
	return nil
}

func (d *fakeDevice) ForgetWifi(ctx context.Context, ssid string) error {
	d.locked(func() {
		d.st.forgotten = append(d.st.forgotten, ssid)
		if d.st.wifi.SSID == ssid {
			d.st.wifi = device.WifiStatus{}
		}
	})
	return nil
}

func (d *fakeDevice) SetRPCEnabled(ctx context.Context, enabled bool, iface device.StreamingInterface) error {
	d.locked(func() { d.st.rpcEnabled = enabled })
	return nil
}

func (d *fakeDevice) NewRPCSessionID(ctx context.Context) (string, error) {
	var id string
	d.locked(func() {
		d.st.sessionIDs++
		id = fmt.Sprintf("session-%d", d.st.sessionIDs)
	})
	return id, nil
}

func (d *fakeDevice) SetRecordingConfig(ctx context.Context, cfg device.RecordingConfig) error {
	d.locked(func() {
		d.st.recordingProfile = cfg.Profile
		d.st.timeSyncMode = cfg.TimeSyncMode
	})
	return nil
}

func (d *fakeDevice) StartRecording(ctx context.Context) error {
	d.locked(func() { d.st.recording = device.RecordingActive })
	return nil
}

func (d *fakeDevice) StopRecording(ctx context.Context) error {
	d.locked(func() { d.st.recording = device.RecordingIdle })
	return nil
}
