// Package dirsize computes the total size of the regular files below a
// directory.
package dirsize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/config"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/metrics"
)

// Mode selects how a regular file's size is measured.
type Mode int

const (
	// ModeApparent sums the length reported by stat.
	ModeApparent Mode = iota
	// ModeAllocated sums the space the files occupy on disk, so sparse files
	// count for what they really use.
	ModeAllocated
)

// ParseMode converts "apparent" or "allocated" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "apparent":
		return ModeApparent, nil
	case "allocated":
		return ModeAllocated, nil
	default:
		return ModeApparent, fmt.Errorf("unknown size mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeAllocated {
		return "allocated"
	}
	return "apparent"
}

// Result is the outcome of one computation.
type Result struct {
	Path       string `json:"path"`
	TotalBytes int64  `json:"total_bytes"`
	Files      int64  `json:"files"`
	Dirs       int64  `json:"dirs"`

	// Partial is set when at least one entry below the root could not be
	// read, so TotalBytes is a lower bound.
	Partial      bool     `json:"partial,omitempty"`
	SkippedCount int64    `json:"skipped_count,omitempty"`
	Skipped      []string `json:"skipped,omitempty"` // first config.MaxSkippedSample paths

	// Unknown is set when the root itself could not be read. TotalBytes is 0.
	Unknown bool `json:"unknown,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Computer walks directory trees. It holds no state between calls.
type Computer struct {
	mode Mode
}

// New creates a Computer measuring sizes with mode.
func New(mode Mode) *Computer {
	return &Computer{mode: mode}
}

// Mode returns the size mode.
func (c *Computer) Mode() Mode {
	return c.mode
}

// Compute walks path depth-first and sums the size of every regular file
// found. A symbolic link to a regular file counts as that file. Links to
// directories are not descended into; dangling links and other non-regular
// entries contribute nothing.
//
// Unreadable or vanished entries below the root are skipped and mark the
// result Partial. An unreadable root yields an Unknown result. The only error
// returned is the context's, when it is cancelled mid-walk.
func (c *Computer) Compute(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	res := Result{Path: path}
	var visited int64

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// A link to a directory is measured by its target.
	root := path
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			root = resolved
		}
	}

	skip := func(p string) {
		res.Partial = true
		res.SkippedCount++
		if len(res.Skipped) < config.MaxSkippedSample {
			res.Skipped = append(res.Skipped, p)
		}
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		visited++
		if visited%config.WalkCancelCheckEvery == 0 {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
		}

		if err != nil {
			if p == root && d == nil {
				res.Unknown = true
				return fs.SkipAll
			}
			if p == root {
				// The root stat worked but reading it did not.
				res.Unknown = true
				return nil
			}
			if d != nil && d.IsDir() && p != root {
				// Already counted when the directory was entered.
				res.Dirs--
			}
			skip(p)
			return nil
		}

		switch {
		case d.IsDir():
			if p != root {
				res.Dirs++
			}
		case d.Type().IsRegular():
			size, err := c.fileSize(p, d)
			if err != nil {
				skip(p)
				return nil
			}
			res.Files++
			res.TotalBytes += size
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Stat(p)
			if err != nil || !target.Mode().IsRegular() {
				return nil
			}
			res.Files++
			res.TotalBytes += c.infoSize(p, target)
		}
		return nil
	})

	res.Duration = time.Since(start)

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		metrics.RecordOutcome(metrics.OutcomeCancelled)
		logging.L().Debug("size computation cancelled",
			zap.String("path", path),
			zap.Int64("visited", visited),
			zap.Duration("elapsed", res.Duration),
		)
		return res, err
	}

	if res.Unknown {
		res.TotalBytes = 0
		res.Files = 0
		res.Dirs = 0
	}

	metrics.RecordComputation(outcome(res), res.Duration, visited, res.SkippedCount, res.TotalBytes)
	logging.L().Debug("size computed",
		zap.String("path", path),
		zap.Int64("bytes", res.TotalBytes),
		zap.Int64("files", res.Files),
		zap.Int64("dirs", res.Dirs),
		zap.Int64("skipped", res.SkippedCount),
		zap.Bool("unknown", res.Unknown),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}

func (c *Computer) fileSize(path string, d fs.DirEntry) (int64, error) {
	info, err := d.Info()
	if err != nil {
		return 0, err
	}
	return c.infoSize(path, info), nil
}

func (c *Computer) infoSize(path string, info os.FileInfo) int64 {
	if c.mode == ModeAllocated {
		return allocatedSize(path, info)
	}
	return info.Size()
}

func outcome(res Result) string {
	switch {
	case res.Unknown:
		return metrics.OutcomeUnknown
	case res.Partial:
		return metrics.OutcomePartial
	default:
		return metrics.OutcomeComplete
	}
}

// DirectorySize returns the apparent size of the tree rooted at path, or 0
// when the root cannot be read.
func DirectorySize(path string) int64 {
	res, _ := New(ModeApparent).Compute(context.Background(), path)
	return res.TotalBytes
}
