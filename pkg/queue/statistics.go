package queue

import (
	"sync/atomic"
	"time"
)

// Statistics tracks queue activity. All methods are safe for concurrent use.
type Statistics struct {
	puts      atomic.Int64
	gets      atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64

	currentSize atomic.Int64
	maxSize     atomic.Int64
	startTime   time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Put records an enqueued item.
func (s *Statistics) Put() { s.puts.Add(1) }

// Get records a dequeued item.
func (s *Statistics) Get() { s.gets.Add(1) }

// Overflow records a Put that found the queue full.
func (s *Statistics) Overflow() { s.overflows.Add(1) }

// Drop records an evicted item.
func (s *Statistics) Drop() { s.drops.Add(1) }

// UpdateSize records the current queue length.
func (s *Statistics) UpdateSize(size int64) {
	s.currentSize.Store(size)
	for {
		peak := s.maxSize.Load()
		if size <= peak || s.maxSize.CompareAndSwap(peak, size) {
			return
		}
	}
}

// Puts returns the total number of enqueued items.
func (s *Statistics) Puts() int64 { return s.puts.Load() }

// Gets returns the total number of dequeued items.
func (s *Statistics) Gets() int64 { return s.gets.Load() }

// Overflows returns the number of puts that found the queue full.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops returns the number of evicted items.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the last recorded queue length.
func (s *Statistics) CurrentSize() int64 { return s.currentSize.Load() }

// MaxSize returns the largest recorded queue length.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// DropRate returns the fraction of puts that evicted an item (0.0 to 1.0).
func (s *Statistics) DropRate() float64 {
	puts := s.Puts()
	if puts == 0 {
		return 0.0
	}
	return float64(s.Drops()) / float64(puts)
}

// Uptime returns how long the queue has existed.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Puts        int64         `json:"puts"`
	Gets        int64         `json:"gets"`
	Overflows   int64         `json:"overflows"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	DropRate    float64       `json:"drop_rate"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Puts:        s.Puts(),
		Gets:        s.Gets(),
		Overflows:   s.Overflows(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		DropRate:    s.DropRate(),
		Uptime:      s.Uptime(),
	}
}
