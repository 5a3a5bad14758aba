// Package bulkclient defines the contract the engine needs from the
// source/target service's bulk REST/SOAP organization protocol (§6).
// The core never depends on a concrete transport; auth and wire
// format are out-of-core collaborators that produce a Client.
package bulkclient

import (
	"context"
	"time"
)

// Value is a single record field value. The concrete Go type encodes
// the data model's value kinds (§3): string for text, int64 for
// integer, float64 for decimal, bool for boolean, time.Time for
// timestamp, string for a 128-bit GUID identifier, Reference for a
// typed-reference, OptionValue for an option value, []byte for
// memo/blob.
type Value = interface{}

// Reference is a typed-reference field value: `{entity, id}`.
type Reference struct {
	Entity string
	ID     string
}

// OptionValue is an option-set field value: integer plus optional
// display label.
type OptionValue struct {
	Value int
	Label string
}

// Record is an opaque field-name to value map, per §3.
type Record map[string]Value

// BypassMode is the bit-flag set for BypassBusinessLogicExecution,
// per §6 and §9's "bypass-options variant".
type BypassMode int

const (
	BypassNone BypassMode = 0
	BypassSync BypassMode = 1 << iota
	BypassAsync
)

// All is the derived "both flags" combination.
const BypassAll = BypassSync | BypassAsync

// String renders the comma-joined server parameter form.
func (b BypassMode) String() string {
	switch b {
	case BypassSync:
		return "CustomSync"
	case BypassAsync:
		return "CustomAsync"
	case BypassAll:
		return "CustomSync,CustomAsync"
	default:
		return ""
	}
}

// BatchOptions carries the well-known request parameters for a bulk
// write, per §4.5 and §6.
type BatchOptions struct {
	Bypass                   BypassMode
	SuppressDuplicateDetection bool
	SuppressCallbackExpander  bool
	Tag                      string
}

// RecordError is one record's failure within a batch, per §4.5.
type RecordError struct {
	Index  int
	ID     string
	Code   string
	Message string
}

// BatchResult is the outcome of one bulk request.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	// IDs holds the target identifier assigned to each successfully
	// written record, indexed the same as the input slice; a zero
	// value means that index failed (see Errors).
	IDs    []string
	Errors []RecordError
}

// FieldMetadata describes one target field's validity for the
// current write mode, used by Phase A (§4.9).
type FieldMetadata struct {
	Name            string
	ValidForCreate  bool
	ValidForUpdate  bool
}

// Page is one page of a paged retrieval, per §4.8 and §6.
type Page struct {
	Records    []Record
	Cookie     string
	HasMore    bool
}

// Association is one many-to-many association to create, per §4.9
// Phase D.
type Association struct {
	Relationship string
	FromID       string
	ToEntity     string
	ToID         string
}

// AssociationPage is one page of a paged many-to-many scan, mirroring
// Page's paging-cookie shape for the export side's relationship reads.
type AssociationPage struct {
	Associations []Association
	Cookie       string
	HasMore      bool
}

// Client is one authenticated connection to the source or target
// service. Pooled handles wrap a Client obtained by cloning a seed
// (§4.3/§4.4); Clone must therefore be cheap and safe to call many
// times concurrently from a single seed.
type Client interface {
	// CreateMultiple, UpdateMultiple, UpsertMultiple write up to 1000
	// records of entity in one bulk request.
	CreateMultiple(ctx context.Context, entity string, records []Record, opts BatchOptions) (BatchResult, error)
	UpdateMultiple(ctx context.Context, entity string, records []Record, opts BatchOptions) (BatchResult, error)
	UpsertMultiple(ctx context.Context, entity string, records []Record, opts BatchOptions) (BatchResult, error)
	DeleteMultiple(ctx context.Context, entity string, ids []string, opts BatchOptions) (BatchResult, error)

	// Retrieve fetches one page of entity's records, continuing from
	// cookie (empty for the first page).
	Retrieve(ctx context.Context, entity string, cookie string, pageSize int) (Page, error)

	// Metadata returns the target's field metadata for entity.
	Metadata(ctx context.Context, entity string) ([]FieldMetadata, error)

	// Associate/Disassociate manage many-to-many relationship rows.
	Associate(ctx context.Context, assoc Association) error
	Disassociate(ctx context.Context, assoc Association) error

	// RetrieveAssociations pages through relationship's current rows,
	// for the exporter's m2m capture (§4.8).
	RetrieveAssociations(ctx context.Context, relationship string, cookie string, pageSize int) (AssociationPage, error)

	// LookupByID checks whether id exists in entity, used by Phase D's
	// role by-identifier fallback.
	LookupByID(ctx context.Context, entity, id string) (bool, error)

	// RecommendedParallelism is the server-advertised default DOP for
	// this seed (§4.3/§4.4's TotalRecommendedParallelism).
	RecommendedParallelism() int

	// Clone produces an independent client sharing this one's
	// authentication, for the pool to hand out as a pooled handle.
	// Clone failures map to ConnectionFailed (§4.4).
	Clone(ctx context.Context) (Client, error)

	// Close releases any resources owned by this client instance.
	Close() error
}

// ThrottleError is returned by Client methods when the server's
// service-protection mechanism rejects the request (§7
// ServiceProtection). RetryAfter is the server's hint, or zero if
// none was given.
type ThrottleError struct {
	Code       string
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return "service protection: " + e.Code
}
