package drmfb

import (
	"fmt"

	"github.com/BeatGlow/drmfb/kms"
	"github.com/BeatGlow/drmfb/pixel"
)

// Session is one exclusively acquired display output.
//
// Every field is either in its zero "not acquired" state or fully populated;
// Close releases whatever is non-zero, in the reverse of acquisition order,
// and is safe to call more than once.
type Session struct {
	dev       Device
	connector *kms.Connector
	mode      *kms.ModeInfo  // points into connector's mode list
	saved     *kms.Crtc      // CRTC state before acquisition
	buf       *kms.DumbBuffer
	fb        uint32 // framebuffer registration, 0 = none
	pix       []byte // mapped buffer memory
}

func open(dev Device, output string, mode int) (*Session, error) {
	s := &Session{dev: dev}
	if err := s.acquire(output, mode); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) acquire(output string, mode int) error {
	res, err := s.dev.Resources()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResourceQuery, err)
	}

	conn, err := findConnector(s.dev, res, output)
	if err != nil {
		return err
	}
	s.connector = conn
	if len(conn.Modes) == 0 {
		return fmt.Errorf("%w: %s", ErrNoModes, output)
	}
	s.mode = selectMode(conn, mode)
	logger.Debug("resolved output", "output", output, "mode", s.mode.String())

	buf, err := s.dev.CreateDumb(uint32(s.mode.Hdisplay), uint32(s.mode.Vdisplay), 32)
	if err != nil {
		return fmt.Errorf("%w: %dx%d: %w", ErrBufferAllocation, s.mode.Hdisplay, s.mode.Vdisplay, err)
	}
	s.buf = buf

	fb, err := s.dev.AddFB(buf.Width, buf.Height, kms.FormatABGR8888, buf.Handle, buf.Pitch, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBufferRegistration, err)
	}
	s.fb = fb

	offset, err := s.dev.MapDumb(buf.Handle)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBufferMapRequest, err)
	}
	pix, err := s.dev.Mmap(offset, int(buf.Size))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMemoryMap, err)
	}
	s.pix = pix

	if err = s.capture(res); err != nil {
		return err
	}

	// Let other processes register their own framebuffers while the session
	// is live; mastership is re-taken for each CRTC mutation.
	if err = s.dev.DropMaster(); err != nil {
		logger.Debug("drop master", "err", err)
	}
	return nil
}

// capture snapshots the CRTC currently wired to the connector so Close can
// restore it. The encoder reference is transient and not retained.
func (s *Session) capture(res *kms.Resources) error {
	id := s.connector.EncoderID
	if id == 0 && len(s.connector.Encoders) > 0 {
		id = s.connector.Encoders[0]
	}
	if id == 0 {
		return ErrNoEncoder
	}
	enc, err := s.dev.Encoder(id)
	if err != nil {
		return fmt.Errorf("%w: encoder %d: %w", ErrNoEncoder, id, err)
	}

	crtcID := enc.CrtcID
	if crtcID == 0 && len(res.Crtcs) > 0 {
		crtcID = res.Crtcs[0]
	}
	if crtcID == 0 {
		return ErrNoCrtc
	}
	crtc, err := s.dev.Crtc(crtcID)
	if err != nil {
		return fmt.Errorf("%w: crtc %d: %w", ErrNoCrtc, crtcID, err)
	}
	s.saved = crtc
	return nil
}

// Show points the output's CRTC at the session's framebuffer. Display
// mastership is held only for the duration of the call.
func (s *Session) Show() error {
	if s.dev == nil || s.saved == nil || s.connector == nil || s.fb == 0 {
		return ErrSessionClosed
	}
	if err := s.dev.SetMaster(); err != nil {
		return fmt.Errorf("drmfb: set master: %w", err)
	}
	err := s.dev.SetCrtc(s.saved.ID, s.fb, 0, 0, []uint32{s.connector.ID}, s.mode)
	if derr := s.dev.DropMaster(); derr != nil {
		logger.Debug("drop master", "err", derr)
	}
	if err != nil {
		return fmt.Errorf("drmfb: set crtc: %w", err)
	}
	return nil
}

// Close releases every resource the session still holds, in the reverse of
// acquisition order, and restores the output's prior CRTC state. Teardown is
// best-effort: every remaining step runs even when an earlier one fails, and
// the first error is returned. Close on an already closed session is a
// no-op.
func (s *Session) Close() error {
	if s.dev == nil {
		return nil
	}

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	// Mastership was dropped when acquisition finished; restoring the CRTC
	// needs it back.
	if err := s.dev.SetMaster(); err != nil {
		logger.Debug("set master", "err", err)
	}

	// Restoration needs both the snapshot and the connector it was taken
	// for; with either missing the CRTC was never ours to change.
	if s.saved != nil && s.connector != nil {
		var mode *kms.ModeInfo
		if s.saved.ModeValid {
			mode = &s.saved.Mode
		}
		keep(s.dev.SetCrtc(s.saved.ID, s.saved.BufferID, s.saved.X, s.saved.Y,
			[]uint32{s.connector.ID}, mode))
	}
	s.saved = nil

	if s.fb != 0 {
		if fb, err := s.dev.FB(s.fb); err == nil {
			logger.Debug("removing framebuffer", "id", fb.ID, "size", fmt.Sprintf("%dx%d", fb.Width, fb.Height))
		}
		keep(s.dev.RemoveFB(s.fb))
		s.fb = 0
	}

	// Dropping the connector also invalidates the mode, which is never
	// released on its own.
	s.connector = nil
	s.mode = nil

	if s.buf != nil {
		keep(s.dev.DestroyDumb(s.buf.Handle))
		s.buf = nil
	}

	if s.pix != nil {
		keep(s.dev.Munmap(s.pix))
		s.pix = nil
	}

	keep(s.dev.Close())
	s.dev = nil
	return first
}

// Pix is the raw mapped buffer memory. Rows are Stride bytes apart, which
// may be more than 4x the mode width.
func (s *Session) Pix() []byte {
	return s.pix
}

// Stride is the row stride in bytes, as reported by the kernel allocator.
func (s *Session) Stride() int {
	if s.buf == nil {
		return 0
	}
	return int(s.buf.Pitch)
}

// Mode is the display mode the session was acquired with.
func (s *Session) Mode() kms.ModeInfo {
	if s.mode == nil {
		return kms.ModeInfo{}
	}
	return *s.mode
}

// Image returns the mapped buffer as a drawable image.
func (s *Session) Image() *pixel.ABGRImage {
	if s.buf == nil || s.pix == nil {
		return nil
	}
	return pixel.NewABGRImage(s.pix, int(s.buf.Width), int(s.buf.Height), int(s.buf.Pitch))
}

func (s *Session) String() string {
	if s.connector == nil || s.mode == nil {
		return "closed session"
	}
	return fmt.Sprintf("%s %s", ConnectorName(s.connector), s.mode)
}
