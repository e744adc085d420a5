package heap

import "hadron/kernel"

// ErrOutOfMemory is returned when no free block satisfies a request and
// either no grow callback is registered or the callback itself failed.
var ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}
