package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lucernlabs/recordflow/internal/progress"
)

// attachConsoleSubscriber subscribes a background goroutine to bus
// that renders every event either as JSON-lines (--json) or a
// one-line human summary, matching §4.10's "the core does not choose
// a renderer" stance: this is just one of several possible consumers,
// alongside internal/progress/stream.go's WebSocket transport.
func attachConsoleSubscriber(bus *progress.Bus, log *slog.Logger) {
	events, _ := bus.Subscribe()
	go func() {
		for e := range events {
			if jsonOutput {
				b, err := json.Marshal(e)
				if err != nil {
					continue
				}
				fmt.Fprintln(os.Stdout, string(b))
				continue
			}
			renderHuman(log, e)
		}
	}()
}

func renderHuman(log *slog.Logger, e progress.Event) {
	if e.Phase == progress.PhaseError {
		log.Error("migration error", "kind", e.ErrorKind, "source", e.Source, "entity", e.Entity, "record_index", e.RecordIndex, "code", e.Code, "message", e.Message)
		return
	}
	attrs := []any{"phase", string(e.Phase)}
	if e.Entity != "" {
		attrs = append(attrs, "entity", e.Entity)
	}
	if e.Tier > 0 || e.Phase == "importing" {
		attrs = append(attrs, "tier", e.Tier)
	}
	if e.Relationship != "" {
		attrs = append(attrs, "relationship", e.Relationship)
	}
	if e.Total > 0 {
		attrs = append(attrs, "current", e.Current, "total", e.Total)
	}
	if e.Message != "" {
		attrs = append(attrs, "message", e.Message)
	}
	log.Info("progress", attrs...)
}
