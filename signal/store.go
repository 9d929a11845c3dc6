package signal

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// slot is a connected callback. replaying and backlog are guarded by the
// owning store's mutex.
type slot struct {
	id     SlotID
	filter Filter
	cb     Callback

	done      atomic.Bool
	replaying bool
	backlog   []Signal
}

// Store fans signals out to connected slots. It is safe for concurrent
// use; callbacks run on the emitting goroutine without any store lock
// held, so they may call Connect, Disconnect or Emit themselves.
type Store struct {
	opts *options

	mu     sync.Mutex
	slots  []*slot
	nextID SlotID
	closed bool
	cache  *stateCache // nil for a plain Store
}

// NewStore creates a Store.
func NewStore(opts ...Option) *Store {
	return &Store{opts: applyOptions("default", opts)}
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.opts.name
}

// Connect registers cb for the signals accepted by filter and returns its
// id. A caching store replays its state to cb before Connect returns.
// Connecting to a closed store, or with a nil callback, returns 0.
func (s *Store) Connect(filter Filter, cb Callback) SlotID {
	if cb == nil {
		return 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.nextID++
	sl := &slot{id: s.nextID, filter: filter, cb: cb}

	var replay []Signal
	if s.cache != nil {
		replay = s.cache.snapshot(filter)
		sl.replaying = len(replay) > 0
	}
	s.slots = append(s.slots, sl)
	count := len(s.slots)
	s.mu.Unlock()

	if m := s.opts.metrics; m != nil {
		m.RecordSlots(s.opts.name, count)
	}

	if len(replay) > 0 {
		s.replay(sl, replay)
	}
	return sl.id
}

// replay delivers the cache snapshot, then whatever live signals were
// parked for sl meanwhile, until the backlog is empty.
func (s *Store) replay(sl *slot, snapshot []Signal) {
	for _, sig := range snapshot {
		s.deliver(sl, sig)
	}
	if m := s.opts.metrics; m != nil {
		m.RecordReplay(s.opts.name, len(snapshot))
	}

	for {
		s.mu.Lock()
		batch := sl.backlog
		sl.backlog = nil
		if len(batch) == 0 {
			sl.replaying = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		for _, sig := range batch {
			s.deliver(sl, sig)
		}
	}
}

// Disconnect removes the slot. It reports whether the slot was connected.
// A signal already being delivered to the slot may still arrive.
func (s *Store) Disconnect(id SlotID) bool {
	s.mu.Lock()
	idx := -1
	for i, sl := range s.slots {
		if sl.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	sl := s.slots[idx]
	sl.done.Store(true)
	sl.backlog = nil
	s.slots = append(s.slots[:idx:idx], s.slots[idx+1:]...)
	count := len(s.slots)
	s.mu.Unlock()

	if m := s.opts.metrics; m != nil {
		m.RecordSlots(s.opts.name, count)
	}
	return true
}

// Emit delivers sig to every matching slot in registration order. A
// caching store updates its state first, atomically with selecting the
// recipients. Emitting on a closed store does nothing.
func (s *Store) Emit(sig Signal) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cache != nil {
		s.cache.apply(sig)
	}
	var targets []*slot
	for _, sl := range s.slots {
		if !sl.filter.acceptsTopic(sig.Topic) {
			continue
		}
		if sl.replaying {
			sl.backlog = append(sl.backlog, sig)
			continue
		}
		targets = append(targets, sl)
	}
	s.mu.Unlock()

	if m := s.opts.metrics; m != nil {
		m.RecordEmit(s.opts.name)
	}
	for _, sl := range targets {
		s.deliver(sl, sig)
	}
}

// Slots returns the number of connected slots.
func (s *Store) Slots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Close disconnects every slot and discards cached state. Later Connect
// calls return 0 and later Emit calls do nothing.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, sl := range s.slots {
		sl.done.Store(true)
		sl.backlog = nil
	}
	s.slots = nil
	if s.cache != nil {
		s.cache.clear()
	}
	s.mu.Unlock()

	if m := s.opts.metrics; m != nil {
		m.RecordSlots(s.opts.name, 0)
	}
	return nil
}

// deliver applies the slot's content filter and invokes its callback,
// converting errors and panics into reported slot failures. Topic
// selection has already happened under the store lock.
func (s *Store) deliver(sl *slot, sig Signal) {
	if sl.done.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.fail(&SlotError{Store: s.opts.name, Slot: sl.id, Signal: sig, Panic: r,
				Err: fmt.Errorf("panic: %v", r)})
		}
	}()
	if sl.filter.Match != nil && !sl.filter.Match(sig) {
		return
	}
	if err := sl.cb(sig); err != nil {
		s.fail(&SlotError{Store: s.opts.name, Slot: sl.id, Signal: sig, Err: err})
	}
}

func (s *Store) fail(se *SlotError) {
	s.opts.logger.Error("Slot callback failed",
		"slot", se.Slot,
		"topic", se.Signal.Topic,
		"key", se.Signal.Key,
		"panic", se.Panic != nil,
		"error", se.Err)
	if m := s.opts.metrics; m != nil {
		m.RecordSlotError(s.opts.name)
	}
	if s.opts.errHandler != nil {
		s.opts.errHandler(se)
	}
}
