package kms

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/drmfb/internal/ioctl"
)

// Card is an open DRM device node.
type Card struct {
	f    *os.File
	path string
}

// Open the DRM device node at path, typically /dev/dri/card[0..x].
func Open(path string) (*Card, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Card{f: f, path: path}, nil
}

func (c *Card) String() string {
	return fmt.Sprintf("DRM card %s", c.path)
}

// Close the device node.
func (c *Card) Close() error {
	return c.f.Close()
}

func (c *Card) fd() uintptr {
	return c.f.Fd()
}

// Cap queries a device capability.
func (c *Card) Cap(id uint64) (uint64, error) {
	arg := getCap{capability: id}
	if err := ioctl.Do(c.fd(), ioctlGetCap, &arg); err != nil {
		return 0, err
	}
	return arg.value, nil
}

// SupportsDumbBuffers reports whether the device can allocate dumb buffers.
func (c *Card) SupportsDumbBuffers() bool {
	v, err := c.Cap(CapDumbBuffer)
	return err == nil && v != 0
}

// SetMaster acquires display mastership for this file descriptor.
func (c *Card) SetMaster() error {
	return ioctl.Do(c.fd(), ioctlSetMaster, nil)
}

// DropMaster relinquishes display mastership.
func (c *Card) DropMaster() error {
	return ioctl.Do(c.fd(), ioctlDropMaster, nil)
}

// Resources fetches the card's connector, encoder, CRTC and framebuffer id
// lists. The ioctl is issued twice: once to learn the counts, once to fill
// the arrays.
func (c *Card) Resources() (*Resources, error) {
	var arg modeCardRes
	if err := ioctl.Do(c.fd(), ioctlModeGetResources, &arg); err != nil {
		return nil, err
	}

	var fbs, crtcs, connectors, encoders []uint32
	if arg.countFBs > 0 {
		fbs = make([]uint32, arg.countFBs)
		arg.fbIDPtr = uint64(uintptr(unsafe.Pointer(&fbs[0])))
	}
	if arg.countCrtcs > 0 {
		crtcs = make([]uint32, arg.countCrtcs)
		arg.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	}
	if arg.countConnectors > 0 {
		connectors = make([]uint32, arg.countConnectors)
		arg.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
	}
	if arg.countEncoders > 0 {
		encoders = make([]uint32, arg.countEncoders)
		arg.encoderIDPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}

	if err := ioctl.Do(c.fd(), ioctlModeGetResources, &arg); err != nil {
		return nil, err
	}

	// A hotplug between the two calls can shrink the counts.
	return &Resources{
		FBs:        fbs[:min(len(fbs), int(arg.countFBs))],
		Crtcs:      crtcs[:min(len(crtcs), int(arg.countCrtcs))],
		Connectors: connectors[:min(len(connectors), int(arg.countConnectors))],
		Encoders:   encoders[:min(len(encoders), int(arg.countEncoders))],
		MinWidth:   arg.minWidth,
		MaxWidth:   arg.maxWidth,
		MinHeight:  arg.minHeight,
		MaxHeight:  arg.maxHeight,
	}, nil
}

// Connector fetches the connector with the given id, including its mode and
// encoder lists.
func (c *Card) Connector(id uint32) (*Connector, error) {
	arg := modeGetConnector{connectorID: id}
	if err := ioctl.Do(c.fd(), ioctlModeGetConnector, &arg); err != nil {
		return nil, err
	}

	// Always hand the kernel at least one mode slot, a probe in between can
	// raise the count from zero.
	if arg.countModes == 0 {
		arg.countModes = 1
	}
	modes := make([]ModeInfo, arg.countModes)
	arg.modesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))

	var encoders []uint32
	if arg.countEncoders > 0 {
		encoders = make([]uint32, arg.countEncoders)
		arg.encodersPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}

	// Property arrays are not retained, but the kernel insists on writing
	// them if the counts are non-zero.
	if arg.countProps > 0 {
		props := make([]uint32, arg.countProps)
		arg.propsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))
		propValues := make([]uint64, arg.countProps)
		arg.propValuesPtr = uint64(uintptr(unsafe.Pointer(&propValues[0])))
	}

	if err := ioctl.Do(c.fd(), ioctlModeGetConnector, &arg); err != nil {
		return nil, err
	}

	return &Connector{
		ID:         arg.connectorID,
		EncoderID:  arg.encoderID,
		Type:       arg.connectorType,
		TypeID:     arg.connectorTypeID,
		Connection: arg.connection,
		WidthMM:    arg.mmWidth,
		HeightMM:   arg.mmHeight,
		Modes:      modes[:min(len(modes), int(arg.countModes))],
		Encoders:   encoders[:min(len(encoders), int(arg.countEncoders))],
	}, nil
}

// Encoder fetches the encoder with the given id.
func (c *Card) Encoder(id uint32) (*Encoder, error) {
	arg := modeGetEncoder{encoderID: id}
	if err := ioctl.Do(c.fd(), ioctlModeGetEncoder, &arg); err != nil {
		return nil, err
	}
	return &Encoder{
		ID:             arg.encoderID,
		Type:           arg.encoderType,
		CrtcID:         arg.crtcID,
		PossibleCrtcs:  arg.possibleCrtcs,
		PossibleClones: arg.possibleClones,
	}, nil
}

// Crtc fetches the current scanout state of the CRTC with the given id.
func (c *Card) Crtc(id uint32) (*Crtc, error) {
	arg := modeCrtc{crtcID: id}
	if err := ioctl.Do(c.fd(), ioctlModeGetCrtc, &arg); err != nil {
		return nil, err
	}
	return &Crtc{
		ID:        arg.crtcID,
		BufferID:  arg.fbID,
		X:         arg.x,
		Y:         arg.y,
		Width:     uint32(arg.mode.Hdisplay),
		Height:    uint32(arg.mode.Vdisplay),
		ModeValid: arg.modeValid != 0,
		Mode:      arg.mode,
		GammaSize: int(arg.gammaSize),
	}, nil
}

// SetCrtc programs a CRTC to scan the framebuffer fbID out to the given
// connectors at the given mode. A nil mode leaves the CRTC's mode untouched.
// Requires display mastership.
func (c *Card) SetCrtc(crtcID, fbID, x, y uint32, connectors []uint32, mode *ModeInfo) error {
	arg := modeCrtc{
		crtcID: crtcID,
		fbID:   fbID,
		x:      x,
		y:      y,
	}
	if len(connectors) > 0 {
		arg.setConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		arg.countConnectors = uint32(len(connectors))
	}
	if mode != nil {
		arg.mode = *mode
		arg.modeValid = 1
	}
	return ioctl.Do(c.fd(), ioctlModeSetCrtc, &arg)
}

// CreateDumb allocates a dumb buffer of width x height pixels at bpp bits
// per pixel. The kernel chooses the row pitch and total size.
func (c *Card) CreateDumb(width, height, bpp uint32) (*DumbBuffer, error) {
	arg := modeCreateDumb{
		width:  width,
		height: height,
		bpp:    bpp,
	}
	if err := ioctl.Do(c.fd(), ioctlModeCreateDumb, &arg); err != nil {
		return nil, err
	}
	return &DumbBuffer{
		Width:  arg.width,
		Height: arg.height,
		BPP:    arg.bpp,
		Handle: arg.handle,
		Pitch:  arg.pitch,
		Size:   arg.size,
	}, nil
}

// DestroyDumb returns a dumb buffer's memory to the kernel allocator.
func (c *Card) DestroyDumb(handle uint32) error {
	return ioctl.Do(c.fd(), ioctlModeDestroyDumb, &modeDestroyDumb{handle: handle})
}

// AddFB registers a single-plane buffer as a displayable framebuffer and
// returns its framebuffer id.
func (c *Card) AddFB(width, height, format, handle, pitch, offset uint32) (uint32, error) {
	arg := modeFBCmd2{
		width:       width,
		height:      height,
		pixelFormat: format,
	}
	arg.handles[0] = handle
	arg.pitches[0] = pitch
	arg.offsets[0] = offset
	if err := ioctl.Do(c.fd(), ioctlModeAddFB2, &arg); err != nil {
		return 0, err
	}
	return arg.fbID, nil
}

// FB looks up a framebuffer registration by id.
func (c *Card) FB(id uint32) (*FB, error) {
	arg := modeFBCmd{fbID: id}
	if err := ioctl.Do(c.fd(), ioctlModeGetFB, &arg); err != nil {
		return nil, err
	}
	return &FB{
		ID:     arg.fbID,
		Width:  arg.width,
		Height: arg.height,
		Pitch:  arg.pitch,
		BPP:    arg.bpp,
		Depth:  arg.depth,
		Handle: arg.handle,
	}, nil
}

// RemoveFB releases a framebuffer registration.
func (c *Card) RemoveFB(id uint32) error {
	return ioctl.Do(c.fd(), ioctlModeRmFB, &id)
}

// MapDumb requests the mmap offset for a dumb buffer's handle.
func (c *Card) MapDumb(handle uint32) (uint64, error) {
	arg := modeMapDumb{handle: handle}
	if err := ioctl.Do(c.fd(), ioctlModeMapDumb, &arg); err != nil {
		return 0, err
	}
	return arg.offset, nil
}

// Mmap maps length bytes of the device at the given offset into the process
// address space as a shared read-write region.
func (c *Card) Mmap(offset uint64, length int) ([]byte, error) {
	return unix.Mmap(int(c.fd()), int64(offset), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Munmap unmaps a region returned by Mmap.
func (c *Card) Munmap(b []byte) error {
	return unix.Munmap(b)
}
