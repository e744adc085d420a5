// Command gluon extracts a panic backtrace table out of a built kernel ELF
// and writes it as either a standalone HBTF payload (for the bootloader to
// hand the kernel as a module) or a self-contained HKIF image (kernel image
// metadata plus the same table, for loaders that want one file).
package main

import (
	"debug/elf"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gluon <hbtf|hkif> <kernel-elf> <output-file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(2)
	}

	cmd, elfPath, outPath := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	if err := run(cmd, elfPath, outPath); err != nil {
		log.WithError(err).Error("gluon failed")
		os.Exit(1)
	}
}

func run(cmd, elfPath, outPath string) error {
	switch cmd {
	case "hbtf", "hkif":
	default:
		return errors.Errorf("unknown command %q (want hbtf or hkif)", cmd)
	}

	log.WithField("elf", elfPath).Info("opening kernel image")
	f, err := elf.Open(elfPath)
	if err != nil {
		return errors.Wrap(err, "opening kernel ELF")
	}
	defer f.Close()

	virtBase := kernelVirtBase(f)
	imageSize := kernelImageSize(f, virtBase)
	log.WithFields(logrus.Fields{
		"virt_base":  fmt.Sprintf("0x%x", virtBase),
		"image_size": imageSize,
	}).Info("computed kernel image bounds")

	syms, err := extractSymbols(f, virtBase)
	if err != nil {
		return errors.Wrap(err, "extracting symbols")
	}
	log.WithField("count", len(syms)).Info("extracted function symbols")

	lines, err := extractLines(f, virtBase)
	if err != nil {
		return errors.Wrap(err, "extracting line table")
	}
	log.WithField("count", len(lines)).Info("extracted line table rows")

	var out []byte
	switch cmd {
	case "hbtf":
		out = buildHBTF(syms, lines)
	case "hkif":
		out = buildHKIF(hkifParams{
			KernelVirtBase:  virtBase,
			KernelImageSize: imageSize,
			EntryPoint:      f.Entry,
		}, syms, lines)
	}

	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return errors.Wrap(err, "writing output file")
	}

	log.WithFields(logrus.Fields{
		"output": outPath,
		"bytes":  len(out),
	}).Info("wrote backtrace payload")
	return nil
}
