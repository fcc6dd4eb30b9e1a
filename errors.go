package drmfb

import "errors"

// Errors returned during session acquisition. Where a kernel call failed,
// the returned error wraps the raw errno as well; inspect it with errors.Is
// (e.g. errors.Is(err, unix.EAGAIN) to tell a busy mapping from a rejected
// one).
var (
	ErrDeviceUnavailable  = errors.New("drmfb: device unavailable")
	ErrResourceQuery      = errors.New("drmfb: resource query failed")
	ErrOutputNotFound     = errors.New("drmfb: output not found")
	ErrNoModes            = errors.New("drmfb: no modes available")
	ErrBufferAllocation   = errors.New("drmfb: buffer allocation failed")
	ErrBufferRegistration = errors.New("drmfb: buffer registration failed")
	ErrBufferMapRequest   = errors.New("drmfb: buffer map request failed")
	ErrMemoryMap          = errors.New("drmfb: memory map failed")
	ErrNoEncoder          = errors.New("drmfb: no encoder")
	ErrNoCrtc             = errors.New("drmfb: no CRTC")
)

// ErrSessionClosed is returned by operations on a closed or never fully
// acquired session.
var ErrSessionClosed = errors.New("drmfb: session closed")
