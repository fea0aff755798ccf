// Package browse serves directory listings and size triggers over HTTP and
// pushes size cell changes to WebSocket clients.
package browse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/config"
	"github.com/nicktill/dirview/pkg/entry"
	"github.com/nicktill/dirview/pkg/httpx"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/presenter"
)

// ErrOutsideRoot is returned for paths that are not under the served root.
var ErrOutsideRoot = errors.New("path is outside the browsed root")

// Trigger statuses.
const (
	StatusComputed = "computed"
	StatusQueued   = "queued"
	StatusIgnored  = "ignored"
)

// Handler serves the browser API for one root directory.
type Handler struct {
	presenter *presenter.Presenter
	root      string
	maxList   int
}

// NewHandler creates a handler serving root, which must be absolute.
func NewHandler(p *presenter.Presenter, root string) *Handler {
	return &Handler{
		presenter: p,
		root:      filepath.Clean(root),
		maxList:   config.MaxListEntries,
	}
}

// Root returns the served directory.
func (h *Handler) Root() string {
	return h.root
}

// Row is one listed entry with its rendered cells. Recomputable marks rows
// that carry an "update size" action.
type Row struct {
	entry.Entry
	Cells        map[presenter.Attribute]string `json:"cells"`
	Recomputable bool                           `json:"recomputable"`
}

// ListResponse is the body of GET /v1/entries.
type ListResponse struct {
	Path      string `json:"path"`
	Filter    string `json:"filter"`
	Sort      string `json:"sort"`
	Order     string `json:"order"`
	Rows      []Row  `json:"rows"`
	Count     int    `json:"count"`
	Truncated bool   `json:"truncated,omitempty"`
}

// PathRequest is the body of the trigger and release endpoints.
type PathRequest struct {
	Path string `json:"path"`
}

// TriggerResponse is the body of POST /v1/entries/size.
type TriggerResponse struct {
	Status  string            `json:"status"`
	Cell    presenter.CellRef `json:"cell"`
	Display string            `json:"display,omitempty"`
}

// HandleList lists one directory.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	dir, err := h.resolve(q.Get("path"))
	if err != nil {
		h.respondPathError(w, err)
		return
	}

	filter, err := entry.ParseFilter(q.Get("filter"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	sortBy, err := entry.ParseSortKey(q.Get("sort"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	order := strings.ToLower(q.Get("order"))
	switch order {
	case "":
		order = "asc"
	case "asc", "desc":
	default:
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("unknown order %q", order))
		return
	}

	dirEntry, err := entry.Stat(dir)
	if err != nil {
		h.respondPathError(w, err)
		return
	}
	if !dirEntry.IsDir {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("%s is not a directory", dir))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.ListTimeout)
	defer cancel()

	entries, err := entry.List(ctx, dir, entry.ListOptions{
		Filter:     filter,
		SortBy:     sortBy,
		Descending: order == "desc",
		Limit:      h.maxList + 1,
	})
	if err != nil {
		h.respondPathError(w, err)
		return
	}

	resp := ListResponse{
		Path:   dir,
		Filter: filter.String(),
		Sort:   string(sortBy),
		Order:  order,
		Rows:   make([]Row, 0, len(entries)),
	}
	if len(entries) > h.maxList {
		entries = entries[:h.maxList]
		resp.Truncated = true
	}
	for _, e := range entries {
		resp.Rows = append(resp.Rows, h.row(ctx, e))
	}
	resp.Count = len(resp.Rows)

	httpx.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) row(ctx context.Context, e entry.Entry) Row {
	cells := make(map[presenter.Attribute]string, 4)
	for _, attr := range []presenter.Attribute{
		presenter.AttrName, presenter.AttrSize, presenter.AttrModified, presenter.AttrKind,
	} {
		cells[attr] = h.presenter.Cell(ctx, e, attr)
	}
	return Row{Entry: e, Cells: cells, Recomputable: e.IsDir}
}

// HandleTrigger recomputes the size of one directory row. In sync mode the
// response carries the new cell value; in async mode the value arrives later
// as a cell_changed message.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Path == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "path is required")
		return
	}

	path, err := h.resolve(req.Path)
	if err != nil {
		h.respondPathError(w, err)
		return
	}
	e, err := entry.Stat(path)
	if err != nil {
		h.respondPathError(w, err)
		return
	}

	cell := presenter.CellRef{Path: e.Path, Attribute: presenter.AttrSize}
	if !e.IsDir {
		httpx.RespondJSON(w, http.StatusOK, TriggerResponse{
			Status:  StatusIgnored,
			Cell:    cell,
			Display: h.presenter.DisplayValue(r.Context(), e),
		})
		return
	}

	// Sync mode walks on this goroutine; async ignores the deadline.
	ctx, cancel := context.WithTimeout(r.Context(), config.SyncComputeTimeout)
	defer cancel()

	if _, err := h.presenter.Trigger(ctx, e); err != nil {
		h.respondTriggerError(w, r, e.Path, err)
		return
	}

	if h.presenter.Mode() == config.ModeSync {
		httpx.RespondJSON(w, http.StatusOK, TriggerResponse{
			Status:  StatusComputed,
			Cell:    cell,
			Display: h.presenter.DisplayValue(r.Context(), e),
		})
		return
	}
	httpx.RespondJSON(w, http.StatusAccepted, TriggerResponse{Status: StatusQueued, Cell: cell})
}

// HandleRelease forgets a row: its pending computation is dropped and its
// size cell returns to the zero representation.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Path == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "path is required")
		return
	}

	path, err := h.resolve(req.Path)
	if err != nil {
		h.respondPathError(w, err)
		return
	}
	if err := h.presenter.Release(r.Context(), path); err != nil {
		logging.WithContext(r.Context()).Error("release failed", zap.String("path", path), zap.Error(err))
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolve turns a client path into an absolute path under the root. Empty
// means the root itself; relative paths are taken from the root.
func (h *Handler) resolve(p string) (string, error) {
	if p == "" {
		return h.root, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(h.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return p, nil
}

func (h *Handler) respondPathError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOutsideRoot):
		httpx.RespondError(w, http.StatusForbidden, err)
	case errors.Is(err, fs.ErrNotExist):
		httpx.RespondError(w, http.StatusNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		httpx.RespondError(w, http.StatusForbidden, err)
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, err)
	default:
		httpx.RespondError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) respondTriggerError(w http.ResponseWriter, r *http.Request, path string, err error) {
	switch {
	case errors.Is(err, presenter.ErrQueueFull), errors.Is(err, presenter.ErrStopped):
		httpx.RespondError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, presenter.ErrSuperseded):
		httpx.RespondError(w, http.StatusConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, err)
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		logging.WithContext(r.Context()).Error("size trigger failed", zap.String("path", path), zap.Error(err))
		httpx.RespondError(w, http.StatusInternalServerError, err)
	}
}
