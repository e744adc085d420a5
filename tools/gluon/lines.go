package main

import (
	"debug/dwarf"
	"debug/elf"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// lineInfo is one DWARF line-table row, rebased to an offset from the
// kernel's virtual base.
type lineInfo struct {
	Addr uint64
	File string
	Line uint32
}

// extractLines reads every compile unit's line table out of .debug_line and
// returns one entry per statement boundary, deduplicated by address and
// sorted ascending. A binary with no DWARF info (a release build stripped
// of debug sections) is not an error: it simply yields no lines.
func extractLines(f *elf.File, virtBase uint64) ([]lineInfo, error) {
	data, err := f.DWARF()
	if err != nil {
		return nil, nil
	}

	var result []lineInfo
	reader := data.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, errors.Wrap(err, "reading DWARF compile units")
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			reader.SkipChildren()
			continue
		}

		lr, err := data.LineReader(entry)
		if err != nil {
			return nil, errors.Wrap(err, "reading DWARF line table")
		}
		if lr == nil {
			reader.SkipChildren()
			continue
		}

		var row dwarf.LineEntry
		for {
			if err := lr.Next(&row); err != nil {
				if err == io.EOF {
					break
				}
				return nil, errors.Wrap(err, "reading DWARF line table row")
			}
			if row.EndSequence || row.Line == 0 {
				continue
			}
			addr := uint64(row.Address)
			if addr < virtBase {
				continue
			}

			file := ""
			if row.File != nil {
				file = simplifyPath(row.File.Name)
			}

			result = append(result, lineInfo{
				Addr: addr - virtBase,
				File: file,
				Line: uint32(row.Line),
			})
		}
		reader.SkipChildren()
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Addr < result[j].Addr })
	return dedupLinesByAddr(result), nil
}

// dedupLinesByAddr keeps only the first entry seen for each address, the
// same "first entry wins" rule the original HBTF generator applies.
func dedupLinesByAddr(lines []lineInfo) []lineInfo {
	out := lines[:0]
	var lastAddr uint64
	seenOne := false
	for _, l := range lines {
		if seenOne && l.Addr == lastAddr {
			continue
		}
		out = append(out, l)
		lastAddr = l.Addr
		seenOne = true
	}
	return out
}

// simplifyPath strips everything before the crate/package directory from a
// DWARF-reported source path, so HBTF/HKIF output doesn't embed the
// build machine's absolute filesystem layout.
func simplifyPath(path string) string {
	for _, marker := range []string{"kernel/", "tools/"} {
		if pos := strings.Index(path, marker); pos >= 0 {
			return path[pos:]
		}
	}
	if pos := strings.LastIndex(path, "/"); pos >= 0 {
		return path[pos+1:]
	}
	return path
}
