package pmm

import "hadron/kernel"

var (
	// ErrOutOfMemory is returned when no frame (or no run of contiguous
	// frames) satisfies an allocation request.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	// ErrInvalidFrame is returned when a frame address/index lies outside
	// the range the bitmap tracks.
	ErrInvalidFrame = &kernel.Error{Module: "pmm", Message: "invalid frame"}

	// ErrNoBitmapRegion is returned during Init if no usable memory
	// region is large enough to host the bitmap's own backing store.
	ErrNoBitmapRegion = &kernel.Error{Module: "pmm", Message: "no region large enough for frame bitmap"}
)
