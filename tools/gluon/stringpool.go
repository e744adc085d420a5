package main

// stringPool deduplicates strings into a single NUL-terminated byte blob,
// handing back each string's offset for later use as a foreign-key-style
// reference from a symbol or line table entry.
type stringPool struct {
	data    []byte
	offsets map[string]uint32
}

func newStringPool() *stringPool {
	return &stringPool{offsets: make(map[string]uint32)}
}

func (p *stringPool) insert(s string) uint32 {
	if off, ok := p.offsets[s]; ok {
		return off
	}
	off := uint32(len(p.data))
	p.data = append(p.data, s...)
	p.data = append(p.data, 0)
	p.offsets[s] = off
	return off
}
