package signal

import (
	"maps"
	"slices"
)

// topicState is the cached state of one topic: either a single signal or,
// for mapping signals, one signal per key.
type topicState struct {
	value   *Signal
	entries map[string]Signal
}

// stateCache holds the latest state per topic. It is guarded by the owning
// store's mutex.
type stateCache struct {
	topics map[string]*topicState
}

func newStateCache() *stateCache {
	return &stateCache{topics: make(map[string]*topicState)}
}

// apply folds sig into the cache. Mapping additions, updates and plain
// ActionNone mapping signals insert or replace the key; removals delete it.
// A plain signal replaces the topic value, or clears it when its payload is
// nil. A topic switching between plain and mapping signals starts over.
func (c *stateCache) apply(sig Signal) {
	st := c.topics[sig.Topic]

	if !sig.Mapping {
		if sig.Payload == nil {
			delete(c.topics, sig.Topic)
			return
		}
		v := sig.clone()
		c.topics[sig.Topic] = &topicState{value: &v}
		return
	}

	if sig.Action == ActionRemoval {
		if st == nil || st.entries == nil {
			return
		}
		delete(st.entries, sig.Key)
		if len(st.entries) == 0 {
			delete(c.topics, sig.Topic)
		}
		return
	}

	if st == nil || st.entries == nil {
		st = &topicState{entries: make(map[string]Signal)}
		c.topics[sig.Topic] = st
	}
	st.entries[sig.Key] = sig.clone()
}

// snapshot returns copies of the cached signals on the topics accepted by
// filter, topics ascending and keys ascending within a topic. Mapping
// entries are replayed as additions. The content predicate is left to
// delivery, which runs without the lock.
func (c *stateCache) snapshot(filter Filter) []Signal {
	var out []Signal
	for _, topic := range slices.Sorted(maps.Keys(c.topics)) {
		if filter.acceptsTopic(topic) {
			out = append(out, c.topics[topic].signals()...)
		}
	}
	return out
}

func (st *topicState) signals() []Signal {
	if st.value != nil {
		return []Signal{st.value.clone()}
	}
	out := make([]Signal, 0, len(st.entries))
	for _, key := range slices.Sorted(maps.Keys(st.entries)) {
		sig := st.entries[key].clone()
		sig.Action = ActionAddition
		out = append(out, sig)
	}
	return out
}

func (c *stateCache) clear() {
	clear(c.topics)
}

// CachingStore is a Store that remembers the latest state per topic and
// replays it to slots as they connect.
type CachingStore struct {
	*Store
}

// NewCachingStore creates a CachingStore.
func NewCachingStore(opts ...Option) *CachingStore {
	return &CachingStore{Store: &Store{
		opts:  applyOptions("caching", opts),
		cache: newStateCache(),
	}}
}

// Cached returns copies of the cached signals for topic, in replay order.
func (c *CachingStore) Cached(topic string) []Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.cache.topics[topic]
	if !ok {
		return nil
	}
	return st.signals()
}

// Topics returns the cached topics, sorted.
func (c *CachingStore) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.cache.topics))
}
