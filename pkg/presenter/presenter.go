// Package presenter turns size computations into cell values and cell
// change notifications.
//
// A directory row's size cell starts at the zero representation. A trigger
// computes the directory total, stores it as the row's last shown value and
// notifies exactly one cell. In sync mode the trigger blocks for the whole
// walk; in async mode it queues the walk for a worker and the result is
// applied later by Run. Every trigger binds the row to a fresh generation so
// results for a row that was released, or triggered again, are dropped.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/config"
	"github.com/nicktill/dirview/pkg/dirsize"
	"github.com/nicktill/dirview/pkg/entry"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/metrics"
	"github.com/nicktill/dirview/pkg/storage"
)

var (
	// ErrQueueFull is returned by Submit when no more jobs can be queued.
	ErrQueueFull = errors.New("size computation queue is full")
	// ErrStopped is returned by Submit after Run has returned.
	ErrStopped = errors.New("presenter stopped")
	// ErrSuperseded is returned by Recompute when the row was triggered
	// again or released while the walk was running.
	ErrSuperseded = errors.New("size computation superseded")
)

// Computer computes directory sizes. *dirsize.Computer implements it.
type Computer interface {
	Compute(ctx context.Context, path string) (dirsize.Result, error)
}

// Config controls how triggers are executed.
type Config struct {
	Mode      string // config.ModeSync or config.ModeAsync
	Workers   int
	QueueSize int
}

// Presenter mediates between size cells and the SizeComputer.
type Presenter struct {
	computer Computer
	store    storage.Store
	notifier Notifier
	mode     string
	workers  int

	mu      sync.Mutex
	rows    map[string]*binding
	lastGen uint64

	// applyMu orders store writes and notifications against Release.
	applyMu sync.Mutex

	// submitMu orders Submit against shutdown so no job is queued after
	// the dispatcher is gone.
	submitMu sync.Mutex

	jobs        chan job
	completions chan completion
	queued      atomic.Int64

	ctx  context.Context
	stop context.CancelFunc
}

// binding is the current identity of a triggered row.
type binding struct {
	generation uint64
	cancel     context.CancelFunc // in-flight walk, nil when idle
}

type job struct {
	ctx        context.Context
	path       string
	generation uint64
}

type completion struct {
	path       string
	generation uint64
	result     dirsize.Result
	err        error
}

// New creates a Presenter. Async mode needs Run to be running.
func New(computer Computer, store storage.Store, notifier Notifier, cfg Config) *Presenter {
	if cfg.Mode == "" {
		cfg.Mode = config.DefaultMode
	}
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.JobQueueSize
	}
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, CellChange) {})
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Presenter{
		computer:    computer,
		store:       store,
		notifier:    notifier,
		mode:        cfg.Mode,
		workers:     cfg.Workers,
		rows:        make(map[string]*binding),
		jobs:        make(chan job, cfg.QueueSize),
		completions: make(chan completion, config.CompletionBuffer),
		ctx:         ctx,
		stop:        stop,
	}
}

// Mode returns config.ModeSync or config.ModeAsync.
func (p *Presenter) Mode() string {
	return p.mode
}

// DisplayValue returns the size column text for e. It never walks the
// filesystem: files show their direct size, directories their last computed
// total or the zero representation.
func (p *Presenter) DisplayValue(ctx context.Context, e entry.Entry) string {
	if !e.IsDir {
		return FormatFileSize(e.FileSize())
	}

	rec, err := p.store.Get(ctx, e.Path)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.WithContext(ctx).Warn("size record lookup failed",
				zap.String("path", e.Path), zap.Error(err))
		}
		return ZeroDirDisplay
	}
	return FormatDirSize(rec.TotalBytes, rec.Partial, rec.Unknown)
}

// Cell returns the display text of one attribute of e.
func (p *Presenter) Cell(ctx context.Context, e entry.Entry, attr Attribute) string {
	switch attr {
	case AttrName:
		return e.Name
	case AttrSize:
		return p.DisplayValue(ctx, e)
	case AttrModified:
		return e.ModifiedDisplay()
	case AttrKind:
		return e.Kind
	default:
		return ""
	}
}

// Trigger runs a recompute for e using the configured mode. It reports
// whether work was done (sync) or queued (async).
func (p *Presenter) Trigger(ctx context.Context, e entry.Entry) (bool, error) {
	if p.mode == config.ModeSync {
		return p.Recompute(ctx, e)
	}
	return p.Submit(e)
}

// Recompute computes e's directory size on the calling goroutine, stores it
// and emits one notification for e's size cell. Files are a no-op.
func (p *Presenter) Recompute(ctx context.Context, e entry.Entry) (bool, error) {
	if !e.IsDir {
		return false, nil
	}

	walkCtx, gen := p.bind(ctx, e.Path)
	res, err := p.computer.Compute(walkCtx, e.Path)
	if err != nil && ctx.Err() == nil {
		err = ErrSuperseded
	}

	applied, aerr := p.apply(ctx, completion{path: e.Path, generation: gen, result: res, err: err})
	if aerr != nil {
		return false, aerr
	}
	if !applied {
		return false, ErrSuperseded
	}
	return true, nil
}

// Submit queues a computation for e. Files are a no-op. The result is applied
// by Run; a later trigger or Release for the same path discards it.
func (p *Presenter) Submit(e entry.Entry) (bool, error) {
	if !e.IsDir {
		return false, nil
	}

	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	if p.ctx.Err() != nil {
		return false, ErrStopped
	}

	walkCtx, gen := p.bind(p.ctx, e.Path)
	metrics.SetJobsQueued(int(p.queued.Add(1)))
	select {
	case p.jobs <- job{ctx: walkCtx, path: e.Path, generation: gen}:
		return true, nil
	default:
		metrics.SetJobsQueued(int(p.queued.Add(-1)))
		p.unbind(e.Path, gen)
		metrics.RecordJobRejected()
		return false, ErrQueueFull
	}
}

// Release forgets the row for path: the in-flight walk is cancelled, any
// late result is dropped and the stored value is removed.
func (p *Presenter) Release(ctx context.Context, path string) error {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	if b, ok := p.rows[path]; ok {
		if b.cancel != nil {
			b.cancel()
		}
		delete(p.rows, path)
	}
	p.mu.Unlock()

	if err := p.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("release %s: %w", path, err)
	}
	return nil
}

// Pending returns the number of jobs waiting for a worker.
func (p *Presenter) Pending() int {
	return int(p.queued.Load())
}

// Run executes queued jobs on a bounded worker pool and applies their
// results one at a time. It returns when ctx is done, after cancelling every
// walk still running.
func (p *Presenter) Run(ctx context.Context) {
	workers := pool.New().WithMaxGoroutines(p.workers)

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for {
			select {
			case <-p.ctx.Done():
				return
			case j := <-p.jobs:
				metrics.SetJobsQueued(int(p.queued.Add(-1)))
				workers.Go(func() { p.work(j) })
			}
		}
	}()

	defer func() {
		p.submitMu.Lock()
		p.stop()
		p.submitMu.Unlock()

		<-dispatched
		workers.Wait()
		p.drain()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.completions:
			if _, err := p.apply(ctx, c); err != nil && !errors.Is(err, context.Canceled) {
				logging.L().Error("failed to apply size result",
					zap.String("path", c.path), zap.Error(err))
			}
		}
	}
}

func (p *Presenter) work(j job) {
	res, err := p.computer.Compute(j.ctx, j.path)
	select {
	case p.completions <- completion{path: j.path, generation: j.generation, result: res, err: err}:
	case <-p.ctx.Done():
		p.unbind(j.path, j.generation)
	}
}

// drain drops jobs and completions left behind after shutdown.
func (p *Presenter) drain() {
	for {
		select {
		case j := <-p.jobs:
			metrics.SetJobsQueued(int(p.queued.Add(-1)))
			metrics.RecordOutcome(metrics.OutcomeCancelled)
			p.unbind(j.path, j.generation)
		case c := <-p.completions:
			p.unbind(c.path, c.generation)
		default:
			return
		}
	}
}

// bind gives path a fresh generation, cancelling the previous walk.
func (p *Presenter) bind(parent context.Context, path string) (context.Context, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.rows[path]
	if !ok {
		b = &binding{}
		p.rows[path] = b
	}
	if b.cancel != nil {
		b.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	p.lastGen++
	b.generation = p.lastGen
	b.cancel = cancel
	return ctx, b.generation
}

// unbind forgets path's binding if gen is still current.
func (p *Presenter) unbind(path string, gen uint64) {
	p.current(path, gen)
}

// current reports whether gen is still path's binding and, if so, drops the
// binding. Idle rows keep no state; the next trigger binds afresh.
func (p *Presenter) current(path string, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.rows[path]
	if !ok || b.generation != gen {
		return false
	}
	if b.cancel != nil {
		b.cancel()
	}
	delete(p.rows, path)
	return true
}

// apply stores a finished computation and notifies its size cell. Stale
// results are dropped; applied reports whether the cell changed.
func (p *Presenter) apply(ctx context.Context, c completion) (applied bool, err error) {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	if !p.current(c.path, c.generation) {
		metrics.RecordOutcome(metrics.OutcomeDiscarded)
		logging.L().Debug("dropping stale size result",
			zap.String("path", c.path), zap.Uint64("generation", c.generation))
		return false, nil
	}
	if c.err != nil {
		return false, c.err
	}

	rec := storage.SizeRecord{
		Path:         c.path,
		TotalBytes:   c.result.TotalBytes,
		Partial:      c.result.Partial,
		Unknown:      c.result.Unknown,
		SkippedCount: c.result.SkippedCount,
		ComputedAt:   time.Now(),
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.StoreTimeout)
	defer cancel()
	if err := p.store.Put(storeCtx, rec); err != nil {
		return false, fmt.Errorf("store size of %s: %w", c.path, err)
	}

	change := CellChange{
		CellRef:    CellRef{Path: c.path, Attribute: AttrSize},
		Display:    FormatDirSize(rec.TotalBytes, rec.Partial, rec.Unknown),
		TotalBytes: rec.TotalBytes,
		Human:      HumanSize(rec.TotalBytes),
		Partial:    rec.Partial,
		Unknown:    rec.Unknown,
		ComputedAt: rec.ComputedAt,
	}
	p.notifier.NotifyCellChanged(ctx, change)
	metrics.RecordCellNotification(string(AttrSize))

	logging.L().Info("directory size updated",
		zap.String("path", c.path),
		zap.Int64("bytes", rec.TotalBytes),
		zap.Bool("partial", rec.Partial),
		zap.Bool("unknown", rec.Unknown),
		zap.Duration("elapsed", c.result.Duration),
	)
	return true, nil
}
