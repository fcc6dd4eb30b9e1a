package kms

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/BeatGlow/drmfb/internal/ioctl"
)

const displayModeLen = 32

// Payload structs from <drm.h> and <drm_mode.h>. Field order and padding
// must match the kernel ABI exactly, the ioctl command numbers encode the
// struct sizes.
type (
	modeCardRes struct {
		fbIDPtr        uint64
		crtcIDPtr      uint64
		connectorIDPtr uint64
		encoderIDPtr   uint64

		countFBs        uint32
		countCrtcs      uint32
		countConnectors uint32
		countEncoders   uint32

		minWidth, maxWidth   uint32
		minHeight, maxHeight uint32
	}

	modeGetConnector struct {
		encodersPtr   uint64
		modesPtr      uint64
		propsPtr      uint64
		propValuesPtr uint64

		countModes    uint32
		countProps    uint32
		countEncoders uint32

		encoderID       uint32 // currently bound encoder
		connectorID     uint32
		connectorType   uint32
		connectorTypeID uint32

		connection        uint32
		mmWidth, mmHeight uint32
		subpixel          uint32
		pad               uint32
	}

	modeGetEncoder struct {
		encoderID   uint32
		encoderType uint32

		crtcID uint32 // currently bound CRTC

		possibleCrtcs  uint32
		possibleClones uint32
	}

	modeCrtc struct {
		setConnectorsPtr uint64
		countConnectors  uint32

		crtcID uint32
		fbID   uint32 // framebuffer being scanned out, 0 = none

		x, y uint32 // position on the framebuffer

		gammaSize uint32
		modeValid uint32
		mode      ModeInfo
	}

	modeCreateDumb struct {
		height, width uint32
		bpp           uint32
		flags         uint32

		// filled in by the kernel
		handle uint32
		pitch  uint32
		size   uint64
	}

	modeMapDumb struct {
		handle uint32
		pad    uint32

		// fake offset for the subsequent mmap call
		offset uint64
	}

	modeDestroyDumb struct {
		handle uint32
	}

	modeFBCmd struct {
		fbID          uint32
		width, height uint32
		pitch         uint32
		bpp           uint32
		depth         uint32
		handle        uint32
	}

	modeFBCmd2 struct {
		fbID          uint32
		width, height uint32
		pixelFormat   uint32
		flags         uint32
		handles       [4]uint32
		pitches       [4]uint32
		offsets       [4]uint32
		modifier      [4]uint64
	}

	getCap struct {
		capability uint64
		value      uint64
	}
)

var (
	// DRM_IO(0x1e), DRM_IO(0x1f)
	ioctlSetMaster  = ioctl.Encode(ioctl.None, 0, ioctlBase, 0x1e)
	ioctlDropMaster = ioctl.Encode(ioctl.None, 0, ioctlBase, 0x1f)

	// DRM_IOWR(0x0c, struct drm_get_cap)
	ioctlGetCap = ioctl.Pointer(ioctl.Read|ioctl.Write, &getCap{}, ioctlBase, 0x0c)

	// DRM_IOWR(0xa0, struct drm_mode_card_res)
	ioctlModeGetResources = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeCardRes{}, ioctlBase, 0xa0)

	// DRM_IOWR(0xa1, struct drm_mode_crtc)
	ioctlModeGetCrtc = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeCrtc{}, ioctlBase, 0xa1)

	// DRM_IOWR(0xa2, struct drm_mode_crtc)
	ioctlModeSetCrtc = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeCrtc{}, ioctlBase, 0xa2)

	// DRM_IOWR(0xa6, struct drm_mode_get_encoder)
	ioctlModeGetEncoder = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeGetEncoder{}, ioctlBase, 0xa6)

	// DRM_IOWR(0xa7, struct drm_mode_get_connector)
	ioctlModeGetConnector = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeGetConnector{}, ioctlBase, 0xa7)

	// DRM_IOWR(0xad, struct drm_mode_fb_cmd)
	ioctlModeGetFB = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeFBCmd{}, ioctlBase, 0xad)

	// DRM_IOWR(0xaf, unsigned int)
	ioctlModeRmFB = ioctl.Encode(ioctl.Read|ioctl.Write, uint16(unsafe.Sizeof(uint32(0))), ioctlBase, 0xaf)

	// DRM_IOWR(0xb2, struct drm_mode_create_dumb)
	ioctlModeCreateDumb = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeCreateDumb{}, ioctlBase, 0xb2)

	// DRM_IOWR(0xb3, struct drm_mode_map_dumb)
	ioctlModeMapDumb = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeMapDumb{}, ioctlBase, 0xb3)

	// DRM_IOWR(0xb4, struct drm_mode_destroy_dumb)
	ioctlModeDestroyDumb = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeDestroyDumb{}, ioctlBase, 0xb4)

	// DRM_IOWR(0xb8, struct drm_mode_fb_cmd2)
	ioctlModeAddFB2 = ioctl.Pointer(ioctl.Read|ioctl.Write, &modeFBCmd2{}, ioctlBase, 0xb8)
)

// ModeInfo is a display timing descriptor, struct drm_mode_modeinfo.
type ModeInfo struct {
	Clock uint32

	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan uint16

	Vrefresh uint32

	Flags uint32
	Type  uint32
	Name  [displayModeLen]uint8
}

// Preferred reports whether the connector flags this mode as preferred.
func (m *ModeInfo) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

func (m *ModeInfo) String() string {
	name, _, _ := bytes.Cut(m.Name[:], []byte{0})
	if len(name) > 0 {
		return fmt.Sprintf("%s@%d", name, m.Vrefresh)
	}
	return fmt.Sprintf("%dx%d@%d", m.Hdisplay, m.Vdisplay, m.Vrefresh)
}

// Resources is the card's mode-setting resource set.
type Resources struct {
	FBs        []uint32
	Crtcs      []uint32
	Connectors []uint32
	Encoders   []uint32

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// Connector describes one physical or virtual display output.
type Connector struct {
	ID        uint32
	EncoderID uint32 // currently bound encoder, 0 = none
	Type      uint32
	TypeID    uint32 // per-type instance index

	Connection        uint32
	WidthMM, HeightMM uint32

	Modes    []ModeInfo
	Encoders []uint32
}

// Encoder converts a CRTC's pixel stream for a connector.
type Encoder struct {
	ID   uint32
	Type uint32

	CrtcID uint32 // currently bound CRTC, 0 = none

	PossibleCrtcs  uint32
	PossibleClones uint32
}

// Crtc is the scanout state of one CRTC.
type Crtc struct {
	ID       uint32
	BufferID uint32 // framebuffer being scanned out, 0 = none

	X, Y          uint32
	Width, Height uint32
	ModeValid     bool
	Mode          ModeInfo

	GammaSize int
}

// DumbBuffer is a kernel-allocated block of displayable memory.
type DumbBuffer struct {
	Width, Height uint32
	BPP           uint32

	Handle uint32
	Pitch  uint32 // row stride in bytes, as chosen by the allocator
	Size   uint64
}

// FB describes a framebuffer registration.
type FB struct {
	ID            uint32
	Width, Height uint32
	Pitch         uint32
	BPP           uint32
	Depth         uint32
	Handle        uint32
}
