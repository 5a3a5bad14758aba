// Package importer implements the phase pipeline (C9): a shared
// ImportContext flows through ordered phase processors — Target
// Field Validation, Entities, Deferred Fields, Many-to-Many — each
// implementing Process(ctx) per §4.9 and spec §9's "phase pipeline as
// objects" design note.
package importer

import "fmt"

// Mode selects how Phase B/C write records against the target, per
// §4.9.
type Mode string

const (
	// ModeCreate omits the source identifier, letting the target
	// assign a fresh one; the identity map records source→generated.
	ModeCreate Mode = "create"

	// ModeUpdate writes using the source identifier as the target
	// identifier directly, assuming the two already correspond (e.g.
	// a repeat run against the same target). Records with no matching
	// target row are reported and skipped, per §4.9.
	ModeUpdate Mode = "update"

	// ModeUpsert is the default: requires every record to carry its
	// source identifier, which is also used as the target identifier
	// (insert-or-update by id). Re-running an Upsert import is
	// idempotent because identifiers are stable, per §4.9/§7.
	ModeUpsert Mode = "upsert"
)

// Validate reports whether m is one of the three defined modes.
func (m Mode) Validate() error {
	switch m {
	case ModeCreate, ModeUpdate, ModeUpsert, "":
		return nil
	default:
		return fmt.Errorf("importer: unknown mode %q", m)
	}
}

// orDefault returns ModeUpsert when m is unset, per §4.9 ("Upsert is
// default").
func (m Mode) orDefault() Mode {
	if m == "" {
		return ModeUpsert
	}
	return m
}
