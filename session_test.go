package drmfb

import (
	"errors"
	"reflect"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/drmfb/kms"
)

// fakeDevice implements Device with full resource accounting, so tests can
// verify that everything acquired is released again.
type fakeDevice struct {
	res        *kms.Resources
	connectors map[uint32]*kms.Connector
	encoders   map[uint32]*kms.Encoder
	crtcs      map[uint32]*kms.Crtc

	failResources  bool
	failCreateDumb bool
	failAddFB      bool
	failMapDumb    bool
	failMmap       bool
	failCrtc       bool

	masterHeld bool
	nextHandle uint32
	nextFB     uint32

	dumbs map[uint32]*kms.DumbBuffer // outstanding allocations
	fbs   map[uint32]*kms.FB         // outstanding registrations

	createdDumbs int
	addedFBs     int
	mapped       int // outstanding mappings
	mapCalls     int
	closes       int
	crtcSets     []crtcSet
}

type crtcSet struct {
	crtcID, fbID, x, y uint32
	connectors         []uint32
	mode               *kms.ModeInfo
}

func newFakeDevice() *fakeDevice {
	hdmi := &kms.Connector{
		ID:        21,
		EncoderID: 11,
		Type:      kms.ConnectorHDMIA,
		TypeID:    1,
		Modes:     []kms.ModeInfo{testMode(1920, 1080, true), testMode(1280, 720, false)},
		Encoders:  []uint32{11},
	}
	vga := &kms.Connector{
		ID:       22,
		Type:     kms.ConnectorVGA,
		TypeID:   1,
		Modes:    []kms.ModeInfo{testMode(1366, 768, false)},
		Encoders: []uint32{11},
	}
	prior := testMode(1024, 768, false)
	return &fakeDevice{
		res: &kms.Resources{
			Connectors: []uint32{21, 22},
			Encoders:   []uint32{11},
			Crtcs:      []uint32{31},
		},
		connectors: map[uint32]*kms.Connector{21: hdmi, 22: vga},
		encoders:   map[uint32]*kms.Encoder{11: {ID: 11, CrtcID: 31}},
		crtcs: map[uint32]*kms.Crtc{31: {
			ID:        31,
			BufferID:  99,
			X:         0,
			Y:         0,
			ModeValid: true,
			Mode:      prior,
		}},
		masterHeld: true, // first open of the node grants mastership
		dumbs:      make(map[uint32]*kms.DumbBuffer),
		fbs:        make(map[uint32]*kms.FB),
	}
}

func (d *fakeDevice) Resources() (*kms.Resources, error) {
	if d.failResources {
		return nil, unix.EINVAL
	}
	return d.res, nil
}

func (d *fakeDevice) Connector(id uint32) (*kms.Connector, error) {
	c, ok := d.connectors[id]
	if !ok {
		return nil, unix.ENOENT
	}
	return c, nil
}

func (d *fakeDevice) Encoder(id uint32) (*kms.Encoder, error) {
	e, ok := d.encoders[id]
	if !ok {
		return nil, unix.ENOENT
	}
	return e, nil
}

func (d *fakeDevice) Crtc(id uint32) (*kms.Crtc, error) {
	if d.failCrtc {
		return nil, unix.EINVAL
	}
	c, ok := d.crtcs[id]
	if !ok {
		return nil, unix.ENOENT
	}
	return c, nil
}

func (d *fakeDevice) SetCrtc(crtcID, fbID, x, y uint32, connectors []uint32, mode *kms.ModeInfo) error {
	if !d.masterHeld {
		return unix.EACCES
	}
	var m *kms.ModeInfo
	if mode != nil {
		c := *mode
		m = &c
	}
	d.crtcSets = append(d.crtcSets, crtcSet{crtcID, fbID, x, y, connectors, m})
	return nil
}

func (d *fakeDevice) CreateDumb(width, height, bpp uint32) (*kms.DumbBuffer, error) {
	if d.failCreateDumb {
		return nil, unix.ENOMEM
	}
	d.nextHandle++
	d.createdDumbs++
	pitch := (width*bpp/8 + 63) &^ 63
	buf := &kms.DumbBuffer{
		Width:  width,
		Height: height,
		BPP:    bpp,
		Handle: d.nextHandle,
		Pitch:  pitch,
		Size:   uint64(pitch) * uint64(height),
	}
	d.dumbs[buf.Handle] = buf
	return buf, nil
}

func (d *fakeDevice) DestroyDumb(handle uint32) error {
	if _, ok := d.dumbs[handle]; !ok {
		return unix.EINVAL
	}
	delete(d.dumbs, handle)
	return nil
}

func (d *fakeDevice) AddFB(width, height, format, handle, pitch, offset uint32) (uint32, error) {
	if d.failAddFB {
		return 0, unix.EINVAL
	}
	if _, ok := d.dumbs[handle]; !ok {
		return 0, unix.EINVAL
	}
	if format != kms.FormatABGR8888 {
		return 0, unix.EINVAL
	}
	d.nextFB++
	d.addedFBs++
	d.fbs[d.nextFB] = &kms.FB{
		ID:     d.nextFB,
		Width:  width,
		Height: height,
		Pitch:  pitch,
		BPP:    32,
		Depth:  24,
		Handle: handle,
	}
	return d.nextFB, nil
}

func (d *fakeDevice) FB(id uint32) (*kms.FB, error) {
	fb, ok := d.fbs[id]
	if !ok {
		return nil, unix.ENOENT
	}
	return fb, nil
}

func (d *fakeDevice) RemoveFB(id uint32) error {
	if _, ok := d.fbs[id]; !ok {
		return unix.ENOENT
	}
	delete(d.fbs, id)
	return nil
}

func (d *fakeDevice) MapDumb(handle uint32) (uint64, error) {
	if d.failMapDumb {
		return 0, unix.EINVAL
	}
	if _, ok := d.dumbs[handle]; !ok {
		return 0, unix.EINVAL
	}
	return uint64(handle) << 20, nil
}

func (d *fakeDevice) Mmap(offset uint64, length int) ([]byte, error) {
	if d.failMmap {
		return nil, unix.EAGAIN
	}
	d.mapped++
	d.mapCalls++
	return make([]byte, length), nil
}

func (d *fakeDevice) Munmap(b []byte) error {
	if d.mapped == 0 {
		return unix.EINVAL
	}
	d.mapped--
	return nil
}

func (d *fakeDevice) SetMaster() error {
	d.masterHeld = true
	return nil
}

func (d *fakeDevice) DropMaster() error {
	d.masterHeld = false
	return nil
}

func (d *fakeDevice) Close() error {
	d.closes++
	return nil
}

// leaked reports any resource the device still considers outstanding.
func (d *fakeDevice) leaked(t *testing.T) {
	t.Helper()
	if n := len(d.dumbs); n != 0 {
		t.Errorf("%d dumb buffers leaked", n)
	}
	if n := len(d.fbs); n != 0 {
		t.Errorf("%d framebuffer registrations leaked", n)
	}
	if d.mapped != 0 {
		t.Errorf("%d mappings leaked", d.mapped)
	}
	if d.closes != 1 {
		t.Errorf("device closed %d times, want 1", d.closes)
	}
}

func TestSessionAcquire(t *testing.T) {
	captureLog(t)
	dev := newFakeDevice()

	s, err := open(dev, "HDMI-A-1", -1)
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}

	mode := s.Mode()
	if mode.Hdisplay != 1920 || mode.Vdisplay != 1080 {
		t.Errorf("selected mode %dx%d, want 1920x1080", mode.Hdisplay, mode.Vdisplay)
	}
	if got, want := s.Stride(), 7680; got != want {
		t.Errorf("Stride() = %d, want %d", got, want)
	}
	if got, want := len(s.Pix()), 7680*1080; got != want {
		t.Errorf("mapped length = %d, want %d", got, want)
	}
	if got, want := s.String(), "HDMI-A-1 1920x1080@60"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	// The registration must reference a buffer of exactly the mode's size.
	fb, err := dev.FB(s.fb)
	if err != nil {
		t.Fatalf("FB lookup: %v", err)
	}
	if fb.Width != 1920 || fb.Height != 1080 || fb.Pitch != 7680 {
		t.Errorf("registered %dx%d pitch %d, want 1920x1080 pitch 7680", fb.Width, fb.Height, fb.Pitch)
	}

	// Mastership is yielded once the session is established.
	if dev.masterHeld {
		t.Error("mastership still held after acquisition")
	}

	img := s.Image()
	if img == nil {
		t.Fatal("Image() returned nil")
	}
	if b := img.Bounds(); b.Dx() != 1920 || b.Dy() != 1080 {
		t.Errorf("image bounds %v, want 1920x1080", b)
	}
	if img.Stride != 7680 {
		t.Errorf("image stride = %d, want 7680", img.Stride)
	}

	if err = s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	dev.leaked(t)
}

func TestSessionAcquireRoundedStride(t *testing.T) {
	captureLog(t)
	dev := newFakeDevice()

	s, err := open(dev, "VGA-1", 0)
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	defer s.Close()

	// 1366*4 = 5464, rounded up to the allocator's 64-byte pitch.
	if got, want := s.Stride(), 5504; got != want {
		t.Errorf("Stride() = %d, want %d", got, want)
	}
	if got, want := len(s.Pix()), 5504*768; got != want {
		t.Errorf("mapped length = %d, want %d", got, want)
	}
}

func TestSessionOutputNotFound(t *testing.T) {
	captureLog(t)
	dev := newFakeDevice()

	_, err := open(dev, "DP-1", -1)
	if !errors.Is(err, ErrOutputNotFound) {
		t.Fatalf("open() error = %v, want ErrOutputNotFound", err)
	}
	if dev.createdDumbs != 0 || dev.mapCalls != 0 {
		t.Error("resources were allocated for an unmatched output")
	}
	if len(dev.crtcSets) != 0 {
		t.Error("CRTC mutated without a snapshot")
	}
	dev.leaked(t)
}

func TestSessionNoModes(t *testing.T) {
	captureLog(t)
	dev := newFakeDevice()
	dev.connectors[21].Modes = nil

	_, err := open(dev, "HDMI-A-1", -1)
	if !errors.Is(err, ErrNoModes) {
		t.Fatalf("open() error = %v, want ErrNoModes", err)
	}
	if len(dev.crtcSets) != 0 {
		t.Error("CRTC mutated without a snapshot")
	}
	dev.leaked(t)
}

func TestSessionAcquireUnwind(t *testing.T) {
	tests := []struct {
		name   string
		inject func(*fakeDevice)
		want   error
		errno  error
	}{
		{
			name:   "resource query",
			inject: func(d *fakeDevice) { d.failResources = true },
			want:   ErrResourceQuery,
			errno:  unix.EINVAL,
		},
		{
			name:   "buffer allocation",
			inject: func(d *fakeDevice) { d.failCreateDumb = true },
			want:   ErrBufferAllocation,
			errno:  unix.ENOMEM,
		},
		{
			name:   "buffer registration",
			inject: func(d *fakeDevice) { d.failAddFB = true },
			want:   ErrBufferRegistration,
		},
		{
			name:   "buffer map request",
			inject: func(d *fakeDevice) { d.failMapDumb = true },
			want:   ErrBufferMapRequest,
		},
		{
			name:   "memory map",
			inject: func(d *fakeDevice) { d.failMmap = true },
			want:   ErrMemoryMap,
			errno:  unix.EAGAIN,
		},
		{
			name: "no encoder",
			inject: func(d *fakeDevice) {
				d.connectors[21].EncoderID = 0
				d.connectors[21].Encoders = nil
			},
			want: ErrNoEncoder,
		},
		{
			name:   "no crtc",
			inject: func(d *fakeDevice) { d.failCrtc = true },
			want:   ErrNoCrtc,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLog(t)
			dev := newFakeDevice()
			tt.inject(dev)

			_, err := open(dev, "HDMI-A-1", -1)
			if !errors.Is(err, tt.want) {
				t.Fatalf("open() error = %v, want %v", err, tt.want)
			}
			if tt.errno != nil && !errors.Is(err, tt.errno) {
				t.Errorf("open() error = %v, does not wrap %v", err, tt.errno)
			}

			// Acquisition never got as far as a snapshot, so the CRTC must
			// not have been touched during rollback.
			if len(dev.crtcSets) != 0 {
				t.Error("CRTC mutated during rollback without a snapshot")
			}
			dev.leaked(t)
		})
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	captureLog(t)
	dev := newFakeDevice()

	s, err := open(dev, "HDMI-A-1", -1)
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	if err = s.Close(); err != nil {
		t.Errorf("first Close() error: %v", err)
	}
	if err = s.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	dev.leaked(t) // closes == 1 despite double Close
}

func TestSessionRestore(t *testing.T) {
	captureLog(t)
	dev := newFakeDevice()
	prior := *dev.crtcs[31] // copy before the session can touch it

	s, err := open(dev, "HDMI-A-1", -1)
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	if err = s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	if len(dev.crtcSets) != 1 {
		t.Fatalf("%d CRTC mutations, want 1 (the restore)", len(dev.crtcSets))
	}
	restore := dev.crtcSets[0]
	if restore.crtcID != prior.ID || restore.fbID != prior.BufferID {
		t.Errorf("restored crtc %d fb %d, want crtc %d fb %d",
			restore.crtcID, restore.fbID, prior.ID, prior.BufferID)
	}
	if restore.x != prior.X || restore.y != prior.Y {
		t.Errorf("restored position (%d,%d), want (%d,%d)", restore.x, restore.y, prior.X, prior.Y)
	}
	if restore.mode == nil || !reflect.DeepEqual(*restore.mode, prior.Mode) {
		t.Errorf("restored mode %v, want %v", restore.mode, prior.Mode)
	}
	if want := []uint32{21}; !reflect.DeepEqual(restore.connectors, want) {
		t.Errorf("restored connectors %v, want %v", restore.connectors, want)
	}
}

func TestSessionShow(t *testing.T) {
	captureLog(t)
	dev := newFakeDevice()

	s, err := open(dev, "HDMI-A-1", -1)
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	if err = s.Show(); err != nil {
		t.Fatalf("Show() error: %v", err)
	}

	if len(dev.crtcSets) != 1 {
		t.Fatalf("%d CRTC mutations, want 1", len(dev.crtcSets))
	}
	if got := dev.crtcSets[0].fbID; got != s.fb {
		t.Errorf("Show() set fb %d, want session fb %d", got, s.fb)
	}
	if dev.masterHeld {
		t.Error("mastership still held after Show()")
	}

	if err = s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err = s.Show(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Show() after Close error = %v, want ErrSessionClosed", err)
	}
	dev.leaked(t)
}

func TestOpenDeviceUnavailable(t *testing.T) {
	_, err := Open("/dev/dri/no-such-card", "HDMI-A-1", -1)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
}
