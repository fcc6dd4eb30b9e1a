// Package pixel implements image access to mapped display buffers.
//
// The image types in this package are compatible with Go's native
// [image.Image] and [image/draw.Image] interfaces, but wrap externally
// allocated pixel memory with an allocator-chosen row stride instead of
// owning their own backing store.
package pixel
