package recordings

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// fakeRunner maps a joined argument string to canned output.
type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (r *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	key := strings.Join(args, " ")
	r.calls = append(r.calls, key)
	out, ok := r.outputs[key]
	if !ok {
		return "", fmt.Errorf("unexpected adb invocation: %s", key)
	}
	return out, nil
}

func meta(sharedID, mode, endTime string) string {
	return fmt.Sprintf(`{"shared_session_id":%q,"ticsync_mode":%q,"end_time":%q}`, sharedID, mode, endTime)
}

func newTwoDeviceRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{
		"devices -l": "List of devices attached\n" +
			"1WM001 device usb:1-1 model:Aria device:gemini\n" +
			"1WM002 device usb:1-2 model:Aria device:gemini\n" +
			"emulator-5554 device product:sdk model:Pixel device:emu\n",
		"-s 1WM001 shell ls /sdcard/recording": "aaa.vrs\naaa.vrs.json\nbbb.vrs\nbbb.vrs.json\n",
		"-s 1WM002 shell ls /sdcard/recording": "ccc.vrs\nccc.vrs.json\nddd.vrs\nddd.vrs.json\n",
		"-s 1WM001 shell cat /sdcard/recording/aaa.vrs.json": meta("sess-new", "server", "1756000000"),
		"-s 1WM001 shell cat /sdcard/recording/bbb.vrs.json": meta("sess-old", "server", "1755000000"),
		"-s 1WM002 shell cat /sdcard/recording/ccc.vrs.json": meta("sess-new", "client", "1756000000"),
		"-s 1WM002 shell cat /sdcard/recording/ddd.vrs.json": `{"recording_profile":"profile9"}`,
	}}
}

func TestList_GroupsBySharedSession(t *testing.T) {
	m := &Manager{Runner: newTwoDeviceRunner(), ModelMatch: "model:Aria"}

	sessions, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}

	// Newest first.
	if sessions[0].SharedSessionID != "sess-new" || sessions[1].SharedSessionID != "sess-old" {
		t.Errorf("Expected newest-first ordering, got %s then %s",
			sessions[0].SharedSessionID, sessions[1].SharedSessionID)
	}

	newest := sessions[0]
	if newest.Server.Serial != "1WM001" || newest.Server.UID != "aaa" {
		t.Errorf("Unexpected server file: %+v", newest.Server)
	}
	if len(newest.Clients) != 1 || newest.Clients[0].Serial != "1WM002" || newest.Clients[0].UID != "ccc" {
		t.Errorf("Unexpected client files: %+v", newest.Clients)
	}

	// sess-old has no surviving client recordings.
	if len(sessions[1].Clients) != 0 {
		t.Errorf("Expected no clients for sess-old, got %+v", sessions[1].Clients)
	}
}

func TestList_IgnoresNonMatchingDevices(t *testing.T) {
	runner := newTwoDeviceRunner()
	m := &Manager{Runner: runner, ModelMatch: "model:Aria"}

	if _, err := m.List(context.Background()); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, call := range runner.calls {
		if strings.Contains(call, "emulator-5554") {
			t.Errorf("Non-matching device must not be queried: %s", call)
		}
	}
}

func TestDownload_PullsServerAndClients(t *testing.T) {
	runner := newTwoDeviceRunner()
	dir := t.TempDir()
	runner.outputs["-s 1WM001 pull /sdcard/recording/aaa.vrs "+dir] = "1 file pulled\n"
	runner.outputs["-s 1WM002 pull /sdcard/recording/ccc.vrs "+dir] = "1 file pulled\n"

	m := &Manager{Runner: runner, ModelMatch: "model:Aria"}
	if err := m.Download(context.Background(), "sess-new", dir); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	var pulls []string
	for _, call := range runner.calls {
		if strings.Contains(call, " pull ") {
			pulls = append(pulls, call)
		}
	}
	if len(pulls) != 2 {
		t.Fatalf("Expected 2 pulls, got %v", pulls)
	}
	if !strings.Contains(pulls[0], "aaa.vrs") {
		t.Errorf("Expected server pulled first, got %v", pulls)
	}
}

func TestDownload_UnknownSession(t *testing.T) {
	m := &Manager{Runner: newTwoDeviceRunner(), ModelMatch: "model:Aria"}
	err := m.Download(context.Background(), "sess-missing", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "no server recording") {
		t.Fatalf("Expected missing-session error, got %v", err)
	}
}

func TestDownload_SessionWithoutClients(t *testing.T) {
	runner := newTwoDeviceRunner()
	dir := t.TempDir()
	runner.outputs["-s 1WM001 pull /sdcard/recording/bbb.vrs "+dir] = "1 file pulled\n"

	m := &Manager{Runner: runner, ModelMatch: "model:Aria"}
	err := m.Download(context.Background(), "sess-old", dir)
	if err == nil || !strings.Contains(err.Error(), "no client recordings") {
		t.Fatalf("Expected missing-clients error after server pull, got %v", err)
	}
}
