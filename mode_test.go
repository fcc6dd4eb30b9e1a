package drmfb

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/BeatGlow/drmfb/kms"
)

func testMode(w, h int, preferred bool) kms.ModeInfo {
	m := kms.ModeInfo{
		Hdisplay: uint16(w),
		Vdisplay: uint16(h),
		Vrefresh: 60,
	}
	if preferred {
		m.Type = kms.ModeTypePreferred
	}
	return m
}

// captureLog redirects the package logger to a buffer until the test ends.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := logger
	logger = log.New(&buf)
	t.Cleanup(func() { logger = old })
	return &buf
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name     string
		modes    []kms.ModeInfo
		index    int
		want     int
		fallback bool
	}{
		{
			name:  "explicit index",
			modes: []kms.ModeInfo{testMode(1920, 1080, true), testMode(1280, 720, false)},
			index: 1,
			want:  1,
		},
		{
			name:  "single preferred",
			modes: []kms.ModeInfo{testMode(1280, 720, false), testMode(1920, 1080, true), testMode(640, 480, false)},
			index: -1,
			want:  1,
		},
		{
			name:  "last preferred wins",
			modes: []kms.ModeInfo{testMode(1920, 1080, true), testMode(1280, 720, false), testMode(3840, 2160, true)},
			index: -1,
			want:  2,
		},
		{
			name:     "no preferred falls back to first",
			modes:    []kms.ModeInfo{testMode(1280, 720, false), testMode(640, 480, false)},
			index:    -1,
			want:     0,
			fallback: true,
		},
		{
			name:  "out of range index scans preferred",
			modes: []kms.ModeInfo{testMode(1280, 720, false), testMode(1920, 1080, true)},
			index: 5,
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)

			c := &kms.Connector{Type: kms.ConnectorHDMIA, TypeID: 1, Modes: tt.modes}
			got := selectMode(c, tt.index)
			if got != &c.Modes[tt.want] {
				t.Errorf("selectMode() = %s, want mode %d (%s)", got, tt.want, c.Modes[tt.want].String())
			}

			logged := strings.Contains(buf.String(), "no preferred mode")
			if logged != tt.fallback {
				t.Errorf("fallback diagnostic logged = %v, want %v", logged, tt.fallback)
			}
		})
	}
}
