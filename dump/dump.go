// Package dump extracts the unpacked in-memory image of the main module once
// the target has reached its original entry point. It writes one blob file
// per mapped range plus a metadata index; rebuilding a loadable PE from the
// blobs is a downstream concern.
package dump

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"oepdump/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// RangeDump is the metadata record for one dumped memory range
type RangeDump struct {
	Base       process.ProcessMemoryAddress `json:"base"`
	Size       process.ProcessMemorySize    `json:"size"`
	Protection string                       `json:"protection"`
	Blob       string                       `json:"blob"`
}

// Metadata is the index written next to the range blobs
type Metadata struct {
	Identity process.ProcessIdentity `json:"identity"`
	Event    process.OEPEvent        `json:"oep_event"`
	Ranges   []RangeDump             `json:"ranges"`
}

// ImageDump summarizes one completed dump
type ImageDump struct {
	Directory     string
	BytesDumped   uint64
	RangesDumped  int
	RangesSkipped int
}

// Dumper reads the main module's ranges through the controller and writes
// them to disk. All reads happen from the caller's goroutine, never from the
// event dispatcher.
type Dumper struct {
	controller process.Controller
	log        *logger.Logger
}

// New creates a Dumper for the given controller
func New(controller process.Controller, log *logger.Logger) *Dumper {
	if log == nil {
		log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "dump"))
	}
	return &Dumper{controller: controller, log: log}
}

// DumpImage writes the unpacked image to dirname. Module ranges are
// re-enumerated rather than taken from the attach-time snapshot, since the
// packer may have mapped more memory while unpacking. Ranges that cannot be
// read are skipped with a warning: packed regions can be guard pages or
// already released.
func (d *Dumper) DumpImage(event process.OEPEvent, dirname string) (*ImageDump, error) {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	identity := d.controller.Identity()
	d.log.Infoln("Dumping", identity.MainModuleName, "to", dirname)

	ranges, err := d.controller.EnumerateModuleRanges(identity.MainModuleName)
	if err != nil {
		return nil, fmt.Errorf("enumerating ranges of %s: %w", identity.MainModuleName, err)
	}

	result := &ImageDump{Directory: dirname}
	metadata := Metadata{Identity: identity, Event: event}

	for _, r := range ranges {
		if !r.IsReadable() {
			d.log.Debugln("Skipping non-readable range at", r.Base.ToString())
			result.RangesSkipped++
			continue
		}

		data, err := d.controller.ReadProcessMemory(r.Base, r.Size)
		if err != nil {
			d.log.Warn("Skipping unreadable range at ", r.Base.ToString(), ": ", err)
			result.RangesSkipped++
			continue
		}

		blobName := fmt.Sprintf("%016X.bin", uint64(r.Base))
		if err := os.WriteFile(filepath.Join(dirname, blobName), data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write range blob: %w", err)
		}

		metadata.Ranges = append(metadata.Ranges, RangeDump{
			Base:       r.Base,
			Size:       r.Size,
			Protection: r.Protection,
			Blob:       blobName,
		})
		result.RangesDumped++
		result.BytesDumped += uint64(len(data))
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, "metadata.json"), metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	d.log.Infoln("Dumped", result.RangesDumped, "ranges,", result.BytesDumped, "bytes")

	return result, nil
}
