// Package entry describes filesystem entries as the browser presents them.
package entry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nicktill/dirview/pkg/config"
)

// KindDir is the kind column value for directories.
const KindDir = "Dir"

// Entry is a transient view of one filesystem node. Nothing in dirview owns
// entries; they are rebuilt on every listing.
type Entry struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    *int64    `json:"size,omitempty"` // nil for directories
	ModTime time.Time `json:"modified"`
	Kind    string    `json:"kind"`
	Hidden  bool      `json:"hidden,omitempty"`
	Symlink bool      `json:"symlink,omitempty"`
}

// FromFileInfo builds an Entry for path using already-fetched metadata.
// isLink marks entries reached through a symbolic link.
func FromFileInfo(path string, info os.FileInfo, isLink bool) Entry {
	name := filepath.Base(path)
	e := Entry{
		Path:    path,
		Name:    name,
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Hidden:  strings.HasPrefix(name, "."),
		Symlink: isLink,
	}
	if e.IsDir {
		e.Kind = KindDir
	} else {
		size := info.Size()
		e.Size = &size
		e.Kind = Suffix(name)
	}
	return e
}

// Stat resolves a single absolute path into an Entry, following symlinks.
// A dangling link is described by the link itself.
func Stat(path string) (Entry, error) {
	if !filepath.IsAbs(path) {
		return Entry{}, fmt.Errorf("path %q is not absolute", path)
	}
	path = filepath.Clean(path)

	linfo, err := os.Lstat(path)
	if err != nil {
		return Entry{}, err
	}
	isLink := linfo.Mode()&os.ModeSymlink != 0
	if !isLink {
		return FromFileInfo(path, linfo, false), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return FromFileInfo(path, linfo, true), nil
	}
	return FromFileInfo(path, info, true), nil
}

// Suffix returns the part of name after the last dot, without the dot.
// Names without a dot, and dotfiles such as ".bashrc", have no suffix.
func Suffix(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i+1:]
}

// ModifiedDisplay renders the last-modified column.
func (e Entry) ModifiedDisplay() string {
	return e.ModTime.Format(config.ModifiedLayout)
}

// FileSize returns the direct size of a file entry, or 0 for directories.
func (e Entry) FileSize() int64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}
