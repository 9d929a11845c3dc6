package signal

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/proto"
)

// MappingAction is the state transition carried by a mapping signal.
type MappingAction int

// Mapping actions.
const (
	ActionNone MappingAction = iota
	ActionAddition
	ActionUpdate
	ActionRemoval
)

// String returns the string representation of MappingAction
func (a MappingAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionAddition:
		return "addition"
	case ActionUpdate:
		return "update"
	case ActionRemoval:
		return "removal"
	default:
		return fmt.Sprintf("MappingAction(%d)", int(a))
	}
}

// Signal is a payload published on a topic. A mapping signal is
// additionally identified by Key, and its cached state is tracked per key.
type Signal struct {
	Topic   string
	Key     string
	Mapping bool
	Action  MappingAction
	Payload proto.Message
}

// NewSignal creates a plain signal.
func NewSignal(topic string, payload proto.Message) Signal {
	return Signal{Topic: topic, Payload: payload}
}

// NewMappingSignal creates a mapping signal for key.
func NewMappingSignal(topic string, action MappingAction, key string, payload proto.Message) Signal {
	return Signal{Topic: topic, Key: key, Mapping: true, Action: action, Payload: payload}
}

func (s Signal) String() string {
	if s.Mapping {
		return fmt.Sprintf("%s[%s] %s", s.Topic, s.Key, s.Action)
	}
	return s.Topic
}

// clone returns s with a deep copy of its payload.
func (s Signal) clone() Signal {
	if s.Payload != nil {
		s.Payload = proto.Clone(s.Payload)
	}
	return s
}

// Callback receives delivered signals. A returned error is reported but
// never reaches the emitter.
type Callback func(Signal) error

// SlotID identifies a connected slot. The zero SlotID is never assigned.
type SlotID uint64

// Filter selects the signals a slot receives. The zero Filter accepts
// everything.
type Filter struct {
	// Topics restricts delivery to these topics. Empty means all topics.
	Topics []string
	// Match, when set, must also accept the signal. It runs on the
	// delivering goroutine with no store lock held.
	Match func(Signal) bool
}

// Topics returns a filter for the given topics.
func Topics(topics ...string) Filter {
	return Filter{Topics: topics}
}

// Accepts reports whether sig passes the filter.
func (f Filter) Accepts(sig Signal) bool {
	if !f.acceptsTopic(sig.Topic) {
		return false
	}
	return f.Match == nil || f.Match(sig)
}

func (f Filter) acceptsTopic(topic string) bool {
	return len(f.Topics) == 0 || slices.Contains(f.Topics, topic)
}

// Bus is the slot registration surface shared by Store and CachingStore.
type Bus interface {
	Connect(filter Filter, cb Callback) SlotID
	Disconnect(id SlotID) bool
	Emit(sig Signal)
}

// SlotError describes a failed slot callback.
type SlotError struct {
	Store  string
	Slot   SlotID
	Signal Signal
	// Panic holds the recovered value when the callback panicked.
	Panic any
	Err   error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("signal store %s: slot %d failed on %s: %v", e.Store, e.Slot, e.Signal, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}
