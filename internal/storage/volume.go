package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// VolumeStats is a point-in-time free-space reading for a volume.
type VolumeStats struct {
	AvailableBlocks uint64
	BlockSize       uint64
	TotalBlocks     uint64
}

// AvailableBytes returns the free capacity represented by the stats.
func (s VolumeStats) AvailableBytes() uint64 {
	return s.AvailableBlocks * s.BlockSize
}

// Stater reads filesystem statistics for a path. The recording controller
// polls this once a second while recording, so implementations must be cheap.
type Stater interface {
	Stats(path string) (VolumeStats, error)
}

// UnixStater reads volume statistics with statfs(2).
type UnixStater struct{}

func (UnixStater) Stats(path string) (VolumeStats, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return VolumeStats{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return VolumeStats{
		AvailableBlocks: fs.Bavail,
		BlockSize:       uint64(fs.Bsize),
		TotalBlocks:     fs.Blocks,
	}, nil
}

// Volume describes one recording target: a directory plus its
// removable/primary classification.
type Volume struct {
	Path      string
	Removable bool

	stater Stater
}

// NewVolume creates a volume descriptor. A nil stater defaults to statfs.
func NewVolume(path string, removable bool, stater Stater) *Volume {
	if stater == nil {
		stater = UnixStater{}
	}
	return &Volume{Path: path, Removable: removable, stater: stater}
}

// Stats returns the current free-space reading for the volume.
func (v *Volume) Stats() (VolumeStats, error) {
	return v.stater.Stats(v.Path)
}

// Mounted reports whether the volume directory is reachable. A removable
// volume that has been ejected fails this check before any write is tried.
func (v *Volume) Mounted() bool {
	info, err := os.Stat(v.Path)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return false
	}
	_, err = v.stater.Stats(v.Path)
	return err == nil
}

// Report is a human-facing summary of a volume, used by the volumes
// command and the HTTP status endpoint.
type Report struct {
	Path            string `json:"path"`
	Removable       bool   `json:"removable"`
	Mounted         bool   `json:"mounted"`
	Usable          bool   `json:"usable"`
	AvailableBytes  uint64 `json:"available_bytes"`
	AvailableBlocks uint64 `json:"available_blocks"`
	BlockSize       uint64 `json:"block_size"`
	TotalBlocks     uint64 `json:"total_blocks"`
	ReservedBlocks  uint64 `json:"reserved_blocks"`
}

// Describe builds a report for the volume under the given reserve policy.
func (v *Volume) Describe(policy ReservePolicy) Report {
	report := Report{
		Path:      v.Path,
		Removable: v.Removable,
		Mounted:   v.Mounted(),
	}
	if !report.Mounted {
		return report
	}

	stats, err := v.Stats()
	if err != nil {
		report.Mounted = false
		return report
	}

	report.AvailableBytes = stats.AvailableBytes()
	report.AvailableBlocks = stats.AvailableBlocks
	report.BlockSize = stats.BlockSize
	report.TotalBlocks = stats.TotalBlocks
	report.ReservedBlocks = policy.ReservedBlocks(stats, v.Removable)
	report.Usable = policy.Usable(stats, v.Removable)
	return report
}
