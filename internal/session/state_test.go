package session

import (
	"testing"
	"time"

	"github.com/wearablelab/ticsync/internal/ticsync"
)

func testRecord() *ticsync.SessionRecord {
	return &ticsync.SessionRecord{
		RunID:       "3f1c9b2e-test",
		StartedAt:   time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		CountryCode: "US",
		HotspotSSID: "hotspot-srv",
		Server:      ticsync.Assignment{Serial: "srv", Profile: "profile-server"},
		Clients: []ticsync.Assignment{
			{Serial: "c1", Profile: "profile-client"},
			{Serial: "c2", Profile: "profile-client"},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	record := testRecord()

	if err := Save(dir, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected a record, got nil")
	}
	if loaded.RunID != record.RunID {
		t.Errorf("Expected run id %s, got %s", record.RunID, loaded.RunID)
	}
	if loaded.Server != record.Server {
		t.Errorf("Expected server %+v, got %+v", record.Server, loaded.Server)
	}
	if len(loaded.Clients) != 2 || loaded.Clients[1] != record.Clients[1] {
		t.Errorf("Unexpected clients: %+v", loaded.Clients)
	}
	if loaded.HotspotSSID != "hotspot-srv" {
		t.Errorf("Expected hotspot SSID to round-trip, got %s", loaded.HotspotSSID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	record, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load of missing record must not fail: %v", err)
	}
	if record != nil {
		t.Errorf("Expected nil record for missing file, got %+v", record)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, testRecord()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if record, _ := Load(dir); record != nil {
		t.Error("Expected record gone after Remove")
	}
	// Removing again is a no-op.
	if err := Remove(dir); err != nil {
		t.Errorf("Second Remove must not fail: %v", err)
	}
}
