// Package ioctl encodes and performs ioctl system calls.
package ioctl

import (
	"fmt"
	"reflect"

	"golang.org/x/sys/unix"
)

// Mode is the IOCTL data direction.
type Mode uint8

// Directions
const (
	None Mode = iota
	Write
	Read
)

// Command to be sent over ioctl.
type Command uintptr

func (c Command) String() string {
	var (
		mode = Mode(c >> 30 & 0x03)
		size = c >> 16 & 0x3fff
		base = c >> 8 & 0xff
		nr   = c & 0xff
		str  string
	)
	if mode&Write > 0 {
		str += " write"
	}
	if mode&Read > 0 {
		str += " read"
	}
	return fmt.Sprintf("ioctl%s (%d bytes) 0x%02x/0x%02x", str, size, uintptr(base), uintptr(nr))
}

// Do executes the ioctl call with ptr as payload. The returned error wraps
// the raw errno, so callers can inspect it with errors.Is.
func Do(fd uintptr, command Command, ptr interface{}) error {
	var p uintptr

	if ptr != nil {
		v := reflect.ValueOf(ptr)
		p = v.Pointer()
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(command), p); errno != 0 {
		return fmt.Errorf("ioctl %s failed: %w", command, errno)
	}
	return nil
}

// Encode an ioctl command.
func Encode(mode Mode, size uint16, base, nr uint8) Command {
	return Command(mode)<<30 | Command(size&0x3fff)<<16 | Command(base)<<8 | Command(nr)
}

// Pointer encodes a command whose payload size is taken from the value ref
// points to.
func Pointer(mode Mode, ref interface{}, base, nr uint8) Command {
	size := uint16(reflect.TypeOf(ref).Elem().Size())
	return Encode(mode, size, base, nr)
}
