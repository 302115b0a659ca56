// Package testutil holds test helpers shared by the client packages.
package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// NewVCRRecorder creates a VCR recorder for a cassette under
// testdata/fixtures. Replay is the default; set VCR_MODE=record to capture
// live collaborator traffic.
func NewVCRRecorder(t *testing.T, cassetteName string) (*recorder.Recorder, func()) {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("VCR_MODE") == "record" {
		mode = recorder.ModeRecording
	}

	cassettePath := filepath.Join("testdata", "fixtures", cassetteName)

	r, err := recorder.NewAsMode(cassettePath, mode, nil)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	// Match on method and URL only; chat request bodies carry timestamps.
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	cleanup := func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	}

	return r, cleanup
}

// VCRHTTPClient returns an HTTP client that plays through the recorder.
func VCRHTTPClient(r *recorder.Recorder) *http.Client {
	return &http.Client{
		Transport: r,
	}
}

// SkipWithoutCassette skips the test when its cassette has not been
// recorded and the run is not in record mode.
func SkipWithoutCassette(t *testing.T, cassetteName string) {
	t.Helper()

	if os.Getenv("VCR_MODE") == "record" {
		return
	}

	path := filepath.Join("testdata", "fixtures", cassetteName+".yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("cassette %s not recorded; run with VCR_MODE=record against a live endpoint", path)
	}
}
