// Package kms implements the kernel mode-setting interface of DRM display
// devices (/dev/dri/cardN).
//
// A [Card] wraps the open device node and exposes the mode-setting ioctls
// needed to enumerate connectors, allocate dumb buffers, register them as
// framebuffers and program CRTCs. Only the legacy (non-atomic) interface is
// implemented.
package kms

// DRM ioctl base, 'd'.
const ioctlBase = 0x64

// Connector types from <drm_mode.h>.
const (
	ConnectorUnknown = iota
	ConnectorVGA
	ConnectorDVII
	ConnectorDVID
	ConnectorDVIA
	ConnectorComposite
	ConnectorSVideo
	ConnectorLVDS
	ConnectorComponent
	Connector9PinDIN
	ConnectorDisplayPort
	ConnectorHDMIA
	ConnectorHDMIB
	ConnectorTV
	ConnectorEDP
	ConnectorVirtual
	ConnectorDSI
	ConnectorDPI
)

// Connection states.
const (
	Connected = iota + 1
	Disconnected
	UnknownConnection
)

// ModeTypePreferred flags the mode the connector prefers.
const ModeTypePreferred = 1 << 3

// FormatABGR8888 is the fourcc code 'AB24': packed 32-bit A:B:G:R pixels,
// alpha in the most significant byte of the little-endian word.
const FormatABGR8888 = 0x34324241

// Capabilities for Card.Cap.
const (
	CapDumbBuffer uint64 = iota + 1
	CapVBlankHighCrtc
	CapDumbPreferredDepth
	CapDumbPreferShadow
	CapPrime
	CapTimestampMonotonic
	CapAsyncPageFlip
	CapCursorWidth
	CapCursorHeight
)
