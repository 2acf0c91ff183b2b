// Package recordings discovers and downloads the synchronized recordings
// left on the devices after a session. Grouping works off the metadata
// sidecar each recording carries: files sharing a shared session id
// belong to the same synchronized capture.
package recordings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const recordingDir = "/sdcard/recording"

// Runner executes one adb invocation and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs adb as a subprocess.
type ExecRunner struct {
	ADBPath string
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.ADBPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running adb command", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("adb %s failed: %s: %w", args[0], msg, err)
		}
		return "", fmt.Errorf("adb %s failed: %w", args[0], err)
	}
	return stdout.String(), nil
}

// RecordingFile is one VRS file on one device.
type RecordingFile struct {
	Serial string
	UID    string
}

// SessionRecordings groups the server recording and every client
// recording of one synchronized session.
type SessionRecordings struct {
	SharedSessionID string
	EndedAt         time.Time
	Server          RecordingFile
	Clients         []RecordingFile
}

// Manager lists and downloads synchronized recordings across all
// attached devices.
type Manager struct {
	Runner Runner
	// ModelMatch filters `adb devices -l` lines down to the wearable
	// devices (e.g. "model:Aria").
	ModelMatch string
}

// recordingMeta is the metadata sidecar written next to each VRS file.
type recordingMeta struct {
	SharedSessionID string `json:"shared_session_id"`
	Mode            string `json:"ticsync_mode"`
	EndTime         string `json:"end_time"`
}

// List scans every attached device and returns the synchronized
// sessions found, newest first. Sessions whose client recordings were
// already deleted still appear, with an empty client list.
func (m *Manager) List(ctx context.Context) ([]SessionRecordings, error) {
	serials, err := m.deviceSerials(ctx)
	if err != nil {
		return nil, err
	}

	servers := make(map[string]SessionRecordings)
	clients := make(map[string][]RecordingFile)

	for _, serial := range serials {
		out, err := m.Runner.Run(ctx, "-s", serial, "shell", "ls", recordingDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list recordings on %s: %w", serial, err)
		}
		for _, name := range strings.Fields(out) {
			if !strings.HasSuffix(name, ".vrs.json") {
				continue
			}
			uid := strings.TrimSuffix(filepath.Base(name), ".vrs.json")
			meta, err := m.readMeta(ctx, serial, name)
			if err != nil {
				slog.Warn("Skipping unreadable recording metadata", "serial", serial, "file", name, "error", err)
				continue
			}
			if meta.SharedSessionID == "" {
				// Standalone recording, not part of a synchronized session.
				continue
			}
			file := RecordingFile{Serial: serial, UID: uid}
			switch meta.Mode {
			case "server":
				servers[meta.SharedSessionID] = SessionRecordings{
					SharedSessionID: meta.SharedSessionID,
					EndedAt:         parseEndTime(meta.EndTime),
					Server:          file,
				}
			case "client":
				clients[meta.SharedSessionID] = append(clients[meta.SharedSessionID], file)
			}
		}
	}

	sessions := make([]SessionRecordings, 0, len(servers))
	for id, s := range servers {
		s.Clients = clients[id]
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].EndedAt.After(sessions[j].EndedAt)
	})
	return sessions, nil
}

// Download pulls the server VRS file and every client VRS file of the
// given shared session into outputDir.
func (m *Manager) Download(ctx context.Context, sharedSessionID, outputDir string) error {
	sessions, err := m.List(ctx)
	if err != nil {
		return err
	}
	var found *SessionRecordings
	for i := range sessions {
		if sessions[i].SharedSessionID == sharedSessionID {
			found = &sessions[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("no server recording found for shared session id %s", sharedSessionID)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := m.pull(ctx, found.Server, outputDir); err != nil {
		return err
	}
	if len(found.Clients) == 0 {
		return fmt.Errorf("no client recordings found for shared session id %s", sharedSessionID)
	}
	for _, file := range found.Clients {
		if err := m.pull(ctx, file, outputDir); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) pull(ctx context.Context, file RecordingFile, outputDir string) error {
	remote := recordingDir + "/" + file.UID + ".vrs"
	slog.Info("Downloading recording", "serial", file.Serial, "file", remote)
	if _, err := m.Runner.Run(ctx, "-s", file.Serial, "pull", remote, outputDir); err != nil {
		return fmt.Errorf("failed to pull %s from %s: %w", remote, file.Serial, err)
	}
	return nil
}

func (m *Manager) readMeta(ctx context.Context, serial, name string) (recordingMeta, error) {
	var meta recordingMeta
	out, err := m.Runner.Run(ctx, "-s", serial, "shell", "cat", recordingDir+"/"+name)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		return meta, fmt.Errorf("failed to parse recording metadata: %w", err)
	}
	return meta, nil
}

// deviceSerials parses `adb devices -l`, keeping only devices whose
// description matches ModelMatch.
func (m *Manager) deviceSerials(ctx context.Context) ([]string, error) {
	out, err := m.Runner.Run(ctx, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to list adb devices: %w", err)
	}

	var serials []string
	for i, line := range strings.Split(out, "\n") {
		// Skip the "List of devices attached" header and blank lines.
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		if m.ModelMatch != "" && !strings.Contains(line, m.ModelMatch) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			serials = append(serials, fields[0])
		}
	}
	return serials, nil
}

func parseEndTime(ts string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
