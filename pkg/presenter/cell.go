package presenter

import (
	"context"
	"fmt"
	"time"

	units "github.com/docker/go-units"
)

// Attribute names one column of a row.
type Attribute string

const (
	AttrName     Attribute = "name"
	AttrSize     Attribute = "size"
	AttrModified Attribute = "modified"
	AttrKind     Attribute = "kind"
)

// Display strings for the size column.
const (
	ZeroDirDisplay = "0byte"
	UnknownDisplay = "unknown"
)

// CellRef addresses a single cell: one attribute of one entry.
type CellRef struct {
	Path      string    `json:"path"`
	Attribute Attribute `json:"attribute"`
}

// CellChange announces that the value of exactly one cell changed.
type CellChange struct {
	CellRef
	Display    string    `json:"display"`
	TotalBytes int64     `json:"total_bytes"`
	Human      string    `json:"human"`
	Partial    bool      `json:"partial,omitempty"`
	Unknown    bool      `json:"unknown,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// Notifier is told about every cell change. Implementations must not block
// for long; the presenter calls them on its apply path.
type Notifier interface {
	NotifyCellChanged(ctx context.Context, change CellChange)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, change CellChange)

// NotifyCellChanged calls f.
func (f NotifierFunc) NotifyCellChanged(ctx context.Context, change CellChange) {
	f(ctx, change)
}

// FormatDirSize renders a computed directory total.
func FormatDirSize(total int64, partial, unknown bool) string {
	switch {
	case unknown:
		return UnknownDisplay
	case partial:
		return fmt.Sprintf("≥ %d bytes", total)
	default:
		return fmt.Sprintf("%d bytes", total)
	}
}

// FormatFileSize renders a file's direct size.
func FormatFileSize(size int64) string {
	return fmt.Sprintf("%d byte", size)
}

// HumanSize renders n with binary units, e.g. "1.5MiB".
func HumanSize(n int64) string {
	return units.BytesSize(float64(n))
}
