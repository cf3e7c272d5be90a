// Package estimate calculates the remaining recording time from available
// disk space and, optionally, a maximum recording file size.
//
// The reason this is not trivial is that both the free-block count and the
// output file grow in coarse steps every few seconds, while the UI wants a
// smooth countdown. Between polls the estimate decays linearly from the
// last real measurement instead of jumping.
package estimate

import (
	"fmt"
	"os"
	"time"

	"github.com/audiolibrelab/voicecapture/internal/storage"
)

// Limit identifies which of the two constraints produces the smaller
// remaining-time estimate.
type Limit int

const (
	LimitUnknown Limit = iota
	LimitFileSize
	LimitDiskSpace
)

func (l Limit) String() string {
	switch l {
	case LimitFileSize:
		return "file-size"
	case LimitDiskSpace:
		return "disk-space"
	default:
		return "unknown"
	}
}

// Calculator extrapolates remaining recording time. One instance per
// recording session; Reset must be called at the start of every new
// recording attempt so the interpolation anchors do not leak across
// sessions.
type Calculator struct {
	volumePath string
	stater     storage.Stater

	// Rate at which the file grows.
	bytesPerSecond int64

	// State for tracking the size of the recording file.
	watchFile string
	maxBytes  int64

	// Which of the two limits we will hit (or have hit) first.
	currentLowerLimit Limit

	// Time at which the number of free blocks last changed, and the
	// count observed at that moment.
	blocksChangedAt time.Time
	lastBlocks      uint64

	// Time at which the size of the file last changed, and the size
	// observed at that moment.
	fileSizeChangedAt time.Time
	lastFileSize      int64

	// Injected for tests; default to the real clock and os.Stat.
	now      func() time.Time
	fileSize func(path string) (int64, error)
}

// NewCalculator creates a calculator for the volume mounted at volumePath.
// A nil stater defaults to statfs.
func NewCalculator(volumePath string, stater storage.Stater) *Calculator {
	if stater == nil {
		stater = storage.UnixStater{}
	}
	return &Calculator{
		volumePath: volumePath,
		stater:     stater,
		now:        time.Now,
		fileSize:   statSize,
	}
}

// SetBitRate sets the codec bit rate, in bits per second, used for both
// extrapolations. It must be called before the first TimeRemaining of a
// session; a non-positive rate is rejected so the estimate can never
// divide by zero.
func (c *Calculator) SetBitRate(bitsPerSecond int) error {
	if bitsPerSecond <= 0 {
		return fmt.Errorf("bit rate must be positive, got %d", bitsPerSecond)
	}
	c.bytesPerSecond = int64(bitsPerSecond / 8)
	if c.bytesPerSecond == 0 {
		c.bytesPerSecond = 1
	}
	return nil
}

// SetFileSizeLimit makes the calculator return the minimum of two
// estimates: how long until the volume runs out of space and how long
// until the watched file reaches maxBytes.
func (c *Calculator) SetFileSizeLimit(path string, maxBytes int64) {
	c.watchFile = path
	c.maxBytes = maxBytes
}

// ClearFileSizeLimit removes the file watch; only the disk-space estimate
// remains.
func (c *Calculator) ClearFileSizeLimit() {
	c.watchFile = ""
	c.maxBytes = 0
}

// Reset clears the interpolation anchors. Call at the start of every new
// recording attempt.
func (c *Calculator) Reset() {
	c.currentLowerLimit = LimitUnknown
	c.blocksChangedAt = time.Time{}
	c.fileSizeChangedAt = time.Time{}
}

// TimeRemaining returns how many seconds of recording remain. A result of
// zero or less means recording must stop now. The binding constraint is
// recorded and readable via CurrentLowerLimit.
func (c *Calculator) TimeRemaining() (int64, error) {
	if c.bytesPerSecond <= 0 {
		return 0, fmt.Errorf("bit rate not configured")
	}

	stats, err := c.stater.Stats(c.volumePath)
	if err != nil {
		return 0, fmt.Errorf("reading volume stats: %w", err)
	}
	now := c.now()

	if c.blocksChangedAt.IsZero() || stats.AvailableBlocks != c.lastBlocks {
		c.blocksChangedAt = now
		c.lastBlocks = stats.AvailableBlocks
	}

	// The calculation below always leaves one free block, since free
	// space in the block currently being written is never counted. That
	// block may get nibbled when the file is flushed and closed, but the
	// disk cannot run out.
	diskSeconds := int64(c.lastBlocks) * int64(stats.BlockSize) / c.bytesPerSecond
	diskSeconds -= int64(now.Sub(c.blocksChangedAt) / time.Second)

	if c.watchFile == "" {
		c.currentLowerLimit = LimitDiskSpace
		return diskSeconds, nil
	}

	// A recording file is being watched: compute a second estimate based
	// on how long it will take to reach maxBytes.
	fileSize, err := c.fileSize(c.watchFile)
	if err != nil {
		return 0, fmt.Errorf("reading watched file size: %w", err)
	}
	if c.fileSizeChangedAt.IsZero() || fileSize != c.lastFileSize {
		c.fileSizeChangedAt = now
		c.lastFileSize = fileSize
	}

	fileSeconds := (c.maxBytes - c.lastFileSize) / c.bytesPerSecond
	fileSeconds -= int64(now.Sub(c.fileSizeChangedAt) / time.Second)
	fileSeconds -= 1 // just for safety

	if diskSeconds < fileSeconds {
		c.currentLowerLimit = LimitDiskSpace
		return diskSeconds, nil
	}
	c.currentLowerLimit = LimitFileSize
	return fileSeconds, nil
}

// CurrentLowerLimit reports which limit the last TimeRemaining call found
// binding. Needed to show the right message when recording is cut short.
func (c *Calculator) CurrentLowerLimit() Limit {
	return c.currentLowerLimit
}

// DiskSpaceAvailable reports whether there is any point in trying to start
// a recording, under the given reserve policy.
func (c *Calculator) DiskSpaceAvailable(policy storage.ReservePolicy, removable bool) (bool, error) {
	stats, err := c.stater.Stats(c.volumePath)
	if err != nil {
		return false, fmt.Errorf("reading volume stats: %w", err)
	}
	return policy.Usable(stats, removable), nil
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The engine may not have created the file yet.
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}
