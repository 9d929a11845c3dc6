package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/c360/protosignal/codec"
	"github.com/c360/protosignal/pkg/queue"
	"github.com/c360/protosignal/pkg/wire"
	"github.com/c360/protosignal/signal"
)

// record is the JSON line printed for each signal.
type record struct {
	Topic   string `json:"topic"`
	Key     string `json:"key,omitempty"`
	Action  string `json:"action,omitempty"`
	Type    string `json:"type,omitempty"`
	Payload any    `json:"payload"`
}

// printer writes signals as JSON lines with payloads decoded by the
// Dissecter.
type printer struct {
	w         io.Writer
	dissecter *codec.Dissecter
	out       wire.Codec
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, dissecter: codec.NewDissecter(), out: wire.JSON()}
}

func (p *printer) print(sig signal.Signal) error {
	rec := record{Topic: sig.Topic}
	if sig.Mapping {
		rec.Key = sig.Key
		rec.Action = sig.Action.String()
	}
	if sig.Payload != nil {
		rec.Type = string(sig.Payload.ProtoReflect().Descriptor().FullName())
		v, err := p.dissecter.Decode(sig.Payload)
		if err != nil {
			return err
		}
		rec.Payload = v
	}

	data, err := p.out.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.w, "%s\n", data)
	return err
}

// consume prints queued signals until the queue's close sentinel.
func consume(q queue.Queue[signal.Signal], p *printer, logger *slog.Logger) error {
	for sig := range q.All(context.Background()) {
		if err := p.print(sig); err != nil {
			logger.Warn("Failed to print signal", "topic", sig.Topic, "key", sig.Key, "error", err)
		}
	}
	stats := q.Stats()
	logger.Info("Consumer drained", "printed", stats.Gets(), "dropped", stats.Drops())
	return nil
}
