// Package drmfb acquires exclusive, ready-to-draw access to a single display
// output through the Linux kernel mode-setting interface.
//
// A call to [Open] resolves an output by its display name (e.g. "HDMI-A-1"),
// selects a display mode, allocates and registers a dumb buffer sized to
// that mode, snapshots the output's current CRTC wiring and maps the buffer
// into the process address space. [Session.Close] mirrors the acquisition in
// exact reverse order and restores the display to its prior state, also when
// acquisition failed partway through.
//
// A Session holds no internal synchronization; the device connection, mapped
// memory and descriptors of one session must not be used from multiple
// goroutines at once. Sessions on different devices are independent.
package drmfb

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/BeatGlow/drmfb/kms"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "drmfb"})

func init() {
	if os.Getenv("DRMFB_DEBUG") != "" {
		logger.SetLevel(log.DebugLevel)
	}
}

// Device is the kernel mode-setting surface a session drives. It is
// implemented by [kms.Card]; tests substitute resource-accounting fakes.
type Device interface {
	// Resources fetches the device's connector, encoder and CRTC id lists.
	Resources() (*kms.Resources, error)

	// Connector fetches one connector, including its mode list.
	Connector(id uint32) (*kms.Connector, error)

	// Encoder fetches one encoder.
	Encoder(id uint32) (*kms.Encoder, error)

	// Crtc fetches the current scanout state of one CRTC.
	Crtc(id uint32) (*kms.Crtc, error)

	// SetCrtc programs a CRTC. Requires display mastership.
	SetCrtc(crtcID, fbID, x, y uint32, connectors []uint32, mode *kms.ModeInfo) error

	// CreateDumb allocates a dumb buffer.
	CreateDumb(width, height, bpp uint32) (*kms.DumbBuffer, error)

	// DestroyDumb returns a dumb buffer to the kernel allocator.
	DestroyDumb(handle uint32) error

	// AddFB registers a single-plane buffer as a framebuffer.
	AddFB(width, height, format, handle, pitch, offset uint32) (uint32, error)

	// FB looks up a framebuffer registration.
	FB(id uint32) (*kms.FB, error)

	// RemoveFB releases a framebuffer registration.
	RemoveFB(id uint32) error

	// MapDumb requests the mmap offset for a dumb buffer handle.
	MapDumb(handle uint32) (uint64, error)

	// Mmap maps length bytes of the device at offset.
	Mmap(offset uint64, length int) ([]byte, error)

	// Munmap unmaps a region returned by Mmap.
	Munmap(b []byte) error

	// SetMaster acquires display mastership.
	SetMaster() error

	// DropMaster relinquishes display mastership.
	DropMaster() error

	// Close the device connection.
	Close() error
}

var _ Device = (*kms.Card)(nil)

// Open acquires the output named output on the DRM device node at card.
//
// The mode parameter selects the display mode by index into the output's
// mode list; pass a negative value to use the output's preferred mode (or
// the first listed mode if none is flagged preferred).
//
// On any failure every resource already acquired is released before the
// error is returned; the display is left as Open found it.
func Open(card, output string, mode int) (*Session, error) {
	dev, err := kms.Open(card)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, card, err)
	}
	return open(dev, output, mode)
}
