package config

import "time"

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultMaxMemoryMB = 16
	DefaultWorkers     = 2
	DefaultMode        = ModeAsync
	DefaultStore       = StoreMemory
	DefaultSizeMode    = "apparent"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

// Presenter modes
const (
	// ModeSync computes on the requesting goroutine and blocks until done.
	ModeSync = "sync"
	// ModeAsync queues the computation for the worker pool.
	ModeAsync = "async"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// HTTP server timeouts
const (
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second
	ShutdownTimeout    = 30 * time.Second
	TaskStopTimeout    = 5 * time.Second

	// SyncComputeTimeout bounds a sync-mode request. The walk itself has no
	// timeout; the write deadline is what the client observes.
	SyncComputeTimeout = 10 * time.Minute
)

// Presenter queue and walk tuning
const (
	JobQueueSize         = 64
	CompletionBuffer     = 64
	WalkCancelCheckEvery = 256
	MaxSkippedSample     = 32
	StoreTimeout         = 2 * time.Second
	StoreStatsInterval   = 30 * time.Second
)

// Listing limits
const (
	MaxListEntries = 10000
	ListTimeout    = 10 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Display
const (
	// ModifiedLayout renders the "last modified" column.
	ModifiedLayout = "Mon Jan 2 15:04:05 2006"
)
