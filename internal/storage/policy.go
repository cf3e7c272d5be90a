package storage

import (
	"github.com/audiolibrelab/voicecapture/internal/config"
)

// ReservePolicy decides how many blocks on a volume are never counted as
// free. Device builds historically disagreed here (a single block, a
// percentage of the disk, or removable-media-specific rules), so the rule
// is configured rather than hard-coded.
type ReservePolicy struct {
	Mode          string
	MinFreeBlocks int64
	Percent       float64
}

// PolicyFromConfig builds a reserve policy from the preference store.
func PolicyFromConfig(rc config.ReserveConfig) ReservePolicy {
	return ReservePolicy{
		Mode:          rc.Mode,
		MinFreeBlocks: rc.Blocks,
		Percent:       rc.Percent,
	}
}

// ReservedBlocks returns how many blocks the policy keeps off-limits for
// the given volume.
func (p ReservePolicy) ReservedBlocks(stats VolumeStats, removable bool) uint64 {
	switch p.Mode {
	case config.ReservePercent:
		return p.percentBlocks(stats)
	case config.ReserveAuto:
		// Primary storage keeps a percentage headroom; removable media
		// only needs the single in-flight block.
		if removable {
			return p.fixedBlocks()
		}
		return p.percentBlocks(stats)
	default: // config.ReserveFixedBlocks
		return p.fixedBlocks()
	}
}

// Usable reports whether recording onto the volume is worth attempting:
// the available block count must exceed the reserved margin.
func (p ReservePolicy) Usable(stats VolumeStats, removable bool) bool {
	return stats.AvailableBlocks > p.ReservedBlocks(stats, removable)
}

func (p ReservePolicy) fixedBlocks() uint64 {
	if p.MinFreeBlocks < 1 {
		return 1
	}
	return uint64(p.MinFreeBlocks)
}

func (p ReservePolicy) percentBlocks(stats VolumeStats) uint64 {
	reserved := uint64(float64(stats.TotalBlocks) * p.Percent / 100.0)
	if reserved < 1 {
		reserved = 1
	}
	return reserved
}
