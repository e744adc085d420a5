package proc

import "encoding/binary"

// argvPairSize is the size, in bytes, of one (ptr, len) entry in the argv
// array: two 64-bit words.
const argvPairSize = 16

// BuildArgvBlock lays out the block (argc, [(ptr,len); argc], packed bytes)
// that a process expects to find at the top of its stack on entry. It
// returns the raw bytes to write starting at the returned rsp, which is the
// largest 16-byte-aligned address that leaves room for the whole block
// below stackTop.
//
// ptr values embedded in the pairs array are computed against rsp, since
// the block is always written starting there: callers must not relocate
// the returned bytes to a different address without rebuilding the block.
func BuildArgvBlock(stackTop uintptr, argv []string) (data []byte, rsp uintptr) {
	headerSize := 8 + argvPairSize*len(argv)
	stringsSize := 0
	for _, s := range argv {
		stringsSize += len(s)
	}
	total := headerSize + stringsSize

	rsp = (stackTop - uintptr(total)) &^ 15

	data = make([]byte, total)
	binary.LittleEndian.PutUint64(data[0:8], uint64(len(argv)))

	stringsOffset := headerSize
	for i, s := range argv {
		pairOff := 8 + i*argvPairSize
		ptr := rsp + uintptr(stringsOffset)
		binary.LittleEndian.PutUint64(data[pairOff:], uint64(ptr))
		binary.LittleEndian.PutUint64(data[pairOff+8:], uint64(len(s)))
		copy(data[stringsOffset:], s)
		stringsOffset += len(s)
	}

	return data, rsp
}
