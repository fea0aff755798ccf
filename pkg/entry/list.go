package entry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SortKey selects the column a listing is ordered by.
type SortKey string

const (
	SortName     SortKey = "name"
	SortSize     SortKey = "size"
	SortModified SortKey = "modified"
	SortKind     SortKey = "kind"
)

// ParseSortKey validates a sort column name. Empty means SortName.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(s)); k {
	case "":
		return SortName, nil
	case SortName, SortSize, SortModified, SortKind:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort column %q", s)
	}
}

// ListOptions controls List.
type ListOptions struct {
	Filter     Filter
	SortBy     SortKey
	Descending bool
	// Limit caps the number of returned entries (0 = no limit).
	Limit int
}

// List reads the immediate children of dir. "." and ".." are never
// returned; hidden entries are. Entries rejected by the filter are left out.
// Children that vanish between the directory read and their stat are skipped.
func List(ctx context.Context, dir string, opts ListOptions) ([]Entry, error) {
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("path %q is not absolute", dir)
	}
	dir = filepath.Clean(dir)

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for i, d := range dirents {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !opts.Filter.Match(d.Name()) {
			continue
		}

		e, err := Stat(filepath.Join(dir, d.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}

	Sort(entries, opts.SortBy, opts.Descending)

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// Sort orders entries in place. Directories always come before files; the
// key orders within each group and name breaks ties.
func Sort(entries []Entry, key SortKey, descending bool) {
	less := func(a, b Entry) int {
		switch key {
		case SortSize:
			return compareInt64(a.FileSize(), b.FileSize())
		case SortModified:
			return compareInt64(a.ModTime.UnixNano(), b.ModTime.UnixNano())
		case SortKind:
			return strings.Compare(strings.ToLower(a.Kind), strings.ToLower(b.Kind))
		default:
			return 0
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		c := less(a, b)
		if c == 0 {
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
