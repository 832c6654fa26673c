package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewGPXWriter(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "track.gpx")

	writer, err := NewGPXWriter(filename, "Test Track")
	if err != nil {
		t.Fatalf("Failed to create GPX writer: %v", err)
	}
	defer writer.Close()

	if writer.GetTrackPointCount() != 0 {
		t.Errorf("Expected 0 track points, got %d", writer.GetTrackPointCount())
	}
	if writer.gpx.Creator != "go-follow-target-sim" {
		t.Errorf("Unexpected creator %q", writer.gpx.Creator)
	}
	if _, err := os.Stat(filename); err != nil {
		t.Errorf("GPX file should exist: %v", err)
	}
}

func TestNewGPXWriterInvalidPath(t *testing.T) {
	_, err := NewGPXWriter(filepath.Join(t.TempDir(), "missing", "track.gpx"), "Test Track")
	if err == nil {
		t.Error("Expected error for invalid path")
	}
}

func TestGPXRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "track.gpx")

	writer, err := NewGPXWriter(filename, "Test Track")
	if err != nil {
		t.Fatalf("Failed to create GPX writer: %v", err)
	}

	start := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		writer.AddLocation(TargetLocation{
			Lat:       47.397742 + float64(i)*1e-5,
			Lon:       8.545594,
			AbsAlt:    488,
			Timestamp: start.Add(time.Duration(i) * time.Second),
		})
	}
	if writer.GetTrackPointCount() != 3 {
		t.Fatalf("Expected 3 track points, got %d", writer.GetTrackPointCount())
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	points, err := ReadGPXFile(filename)
	if err != nil {
		t.Fatalf("ReadGPXFile failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	if points[2].Lat != 47.397742+2e-5 {
		t.Errorf("Unexpected latitude %f", points[2].Lat)
	}
	if points[0].Elevation != 488 {
		t.Errorf("Expected elevation 488, got %f", points[0].Elevation)
	}
	if !points[1].Time.Equal(start.Add(time.Second)) {
		t.Errorf("Unexpected time %v", points[1].Time)
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if !strings.HasPrefix(string(content), "<?xml") {
		t.Error("GPX file should start with XML header")
	}
	if !strings.Contains(string(content), "<name>Test Track</name>") {
		t.Error("GPX file should contain the track name")
	}
}

func TestCloseGPXWriter(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "track.gpx")

	writer, err := NewGPXWriter(filename, "Test Track")
	if err != nil {
		t.Fatalf("Failed to create GPX writer: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
	if err := writer.WriteToFile(); err == nil {
		t.Error("WriteToFile should fail after close")
	}
}

func TestReadGPXFileEmptyTrack(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "track.gpx")

	writer, err := NewGPXWriter(filename, "Empty")
	if err != nil {
		t.Fatalf("Failed to create GPX writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := ReadGPXFile(filename); err == nil {
		t.Error("Expected error for a track without points")
	}
}
