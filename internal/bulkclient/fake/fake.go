// Package fake provides an in-memory bulkclient.Client used by every
// test in this repository in place of a real SOAP/REST transport,
// mirroring the teacher's stub-publisher test-double pattern.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
)

// entityStore is the in-memory table for one entity.
type entityStore struct {
	mu      sync.Mutex
	records map[string]bulkclient.Record
	m2m     map[string]map[string]bool // relationship -> "fromID|toEntity|toID" -> true
}

// Server is the shared backing store a Client connects to. Multiple
// Clients (and their Clone()s) against the same Server observe the
// same data, the way pooled handles against a real service would.
type Server struct {
	mu       sync.Mutex
	entities map[string]*entityStore
	fields   map[string][]bulkclient.FieldMetadata

	// ThrottleEvery, if > 0, makes every Nth write call return a
	// ThrottleError instead of succeeding, for S3-style tests.
	ThrottleEvery     int32
	ThrottleRetryAfter time.Duration
	writeCount        int32

	// FailFirstN simulates the lazy-TVP race (§4.5 item 6, S4): the
	// first N write calls (CreateMultiple, UpsertMultiple or
	// UpdateMultiple) for TVPRaceEntity fail with a transient race error.
	FailFirstN     int
	TVPRaceEntity  string
	tvpAttempts    int32

	RecommendedDOP int
}

// NewServer creates an empty fake backing store.
func NewServer() *Server {
	return &Server{
		entities:       make(map[string]*entityStore),
		fields:         make(map[string][]bulkclient.FieldMetadata),
		RecommendedDOP: 4,
	}
}

// SetFields registers the target field metadata for entity, used by
// Phase A validation.
func (s *Server) SetFields(entity string, fields []bulkclient.FieldMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[entity] = fields
}

func (s *Server) store(entity string) *entityStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.entities[entity]
	if !ok {
		es = &entityStore{records: make(map[string]bulkclient.Record), m2m: make(map[string]map[string]bool)}
		s.entities[entity] = es
	}
	return es
}

// Records returns a snapshot of entity's records, keyed by id.
func (s *Server) Records(entity string) map[string]bulkclient.Record {
	es := s.store(entity)
	es.mu.Lock()
	defer es.mu.Unlock()
	out := make(map[string]bulkclient.Record, len(es.records))
	for k, v := range es.records {
		out[k] = v
	}
	return out
}

// Associations returns the set of associated "from|toEntity|to" keys
// for relationship. The entity parameter is accepted for call-site
// symmetry with Records but unused: associations are stored per
// relationship, not per entity, matching associateInStore's keying.
func (s *Server) Associations(entity, relationship string) []string {
	es := s.store("__m2m__:" + relationship)
	es.mu.Lock()
	defer es.mu.Unlock()
	keys := make([]string, 0, len(es.m2m[relationship]))
	for k := range es.m2m[relationship] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Client is a Server-backed bulkclient.Client.
type Client struct {
	server *Server
	closed int32
}

// NewClient wraps server in a Client (the "seed").
func NewClient(server *Server) *Client {
	return &Client{server: server}
}

func (c *Client) checkThrottle() error {
	if c.server.ThrottleEvery <= 0 {
		return nil
	}
	n := atomic.AddInt32(&c.server.writeCount, 1)
	if n%c.server.ThrottleEvery == 0 {
		return &bulkclient.ThrottleError{Code: "request-rate-limit-exceeded", RetryAfter: c.server.ThrottleRetryAfter}
	}
	return nil
}

func (c *Client) write(entity string, records []bulkclient.Record, upsert bool) (bulkclient.BatchResult, error) {
	if err := c.checkThrottle(); err != nil {
		return bulkclient.BatchResult{}, err
	}

	if entity == c.server.TVPRaceEntity && int(atomic.AddInt32(&c.server.tvpAttempts, 1)) <= c.server.FailFirstN {
		return bulkclient.BatchResult{}, fmt.Errorf("cannot drop type because it is currently referenced by a constraint")
	}

	es := c.server.store(entity)
	es.mu.Lock()
	defer es.mu.Unlock()

	result := bulkclient.BatchResult{IDs: make([]string, len(records))}
	for i, rec := range records {
		id, _ := rec["id"].(string)
		if upsert && id == "" {
			id = uuid.New().String()
		}
		if id == "" {
			id = uuid.New().String()
		}
		cp := make(bulkclient.Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		cp["id"] = id
		es.records[id] = cp
		result.IDs[i] = id
		result.SuccessCount++
	}
	return result, nil
}

func (c *Client) CreateMultiple(ctx context.Context, entity string, records []bulkclient.Record, opts bulkclient.BatchOptions) (bulkclient.BatchResult, error) {
	return c.write(entity, records, true)
}

func (c *Client) UpsertMultiple(ctx context.Context, entity string, records []bulkclient.Record, opts bulkclient.BatchOptions) (bulkclient.BatchResult, error) {
	return c.write(entity, records, true)
}

func (c *Client) UpdateMultiple(ctx context.Context, entity string, records []bulkclient.Record, opts bulkclient.BatchOptions) (bulkclient.BatchResult, error) {
	if err := c.checkThrottle(); err != nil {
		return bulkclient.BatchResult{}, err
	}
	if entity == c.server.TVPRaceEntity && int(atomic.AddInt32(&c.server.tvpAttempts, 1)) <= c.server.FailFirstN {
		return bulkclient.BatchResult{}, fmt.Errorf("cannot drop type because it is currently referenced by a constraint")
	}

	es := c.server.store(entity)
	es.mu.Lock()
	defer es.mu.Unlock()

	result := bulkclient.BatchResult{IDs: make([]string, len(records))}
	for i, rec := range records {
		id, _ := rec["id"].(string)
		existing, ok := es.records[id]
		if !ok {
			result.Errors = append(result.Errors, bulkclient.RecordError{Index: i, ID: id, Code: "not-found", Message: "record does not exist"})
			result.FailureCount++
			continue
		}
		for k, v := range rec {
			existing[k] = v
		}
		es.records[id] = existing
		result.IDs[i] = id
		result.SuccessCount++
	}
	return result, nil
}

func (c *Client) DeleteMultiple(ctx context.Context, entity string, ids []string, opts bulkclient.BatchOptions) (bulkclient.BatchResult, error) {
	if err := c.checkThrottle(); err != nil {
		return bulkclient.BatchResult{}, err
	}
	es := c.server.store(entity)
	es.mu.Lock()
	defer es.mu.Unlock()

	result := bulkclient.BatchResult{}
	for _, id := range ids {
		delete(es.records, id)
		result.SuccessCount++
	}
	return result, nil
}

func (c *Client) Retrieve(ctx context.Context, entity string, cookie string, pageSize int) (bulkclient.Page, error) {
	es := c.server.store(entity)
	es.mu.Lock()
	defer es.mu.Unlock()

	ids := make([]string, 0, len(es.records))
	for id := range es.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if cookie != "" {
		fmt.Sscanf(cookie, "%d", &start)
	}
	if start > len(ids) {
		start = len(ids)
	}
	end := start + pageSize
	if pageSize <= 0 || end > len(ids) {
		end = len(ids)
	}

	page := bulkclient.Page{}
	for _, id := range ids[start:end] {
		page.Records = append(page.Records, es.records[id])
	}
	if end < len(ids) {
		page.HasMore = true
		page.Cookie = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (c *Client) Metadata(ctx context.Context, entity string) ([]bulkclient.FieldMetadata, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.fields[entity], nil
}

func (c *Client) Associate(ctx context.Context, assoc bulkclient.Association) error {
	return c.associateInStore(assoc, true)
}

func (c *Client) Disassociate(ctx context.Context, assoc bulkclient.Association) error {
	return c.associateInStore(assoc, false)
}

func (c *Client) associateInStore(assoc bulkclient.Association, add bool) error {
	es := c.server.store("__m2m__:" + assoc.Relationship)
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.m2m[assoc.Relationship] == nil {
		es.m2m[assoc.Relationship] = make(map[string]bool)
	}
	key := fmt.Sprintf("%s|%s|%s", assoc.FromID, assoc.ToEntity, assoc.ToID)
	if add {
		es.m2m[assoc.Relationship][key] = true
	} else {
		delete(es.m2m[assoc.Relationship], key)
	}
	return nil
}

func (c *Client) RetrieveAssociations(ctx context.Context, relationship string, cookie string, pageSize int) (bulkclient.AssociationPage, error) {
	es := c.server.store("__m2m__:" + relationship)
	es.mu.Lock()
	keys := make([]string, 0, len(es.m2m[relationship]))
	for k := range es.m2m[relationship] {
		keys = append(keys, k)
	}
	es.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if cookie != "" {
		fmt.Sscanf(cookie, "%d", &start)
	}
	if start > len(keys) {
		start = len(keys)
	}
	end := start + pageSize
	if pageSize <= 0 || end > len(keys) {
		end = len(keys)
	}

	page := bulkclient.AssociationPage{}
	for _, key := range keys[start:end] {
		parts := splitAssocKey(key)
		if len(parts) != 3 {
			continue
		}
		page.Associations = append(page.Associations, bulkclient.Association{
			Relationship: relationship, FromID: parts[0], ToEntity: parts[1], ToID: parts[2],
		})
	}
	if end < len(keys) {
		page.HasMore = true
		page.Cookie = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func splitAssocKey(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	return parts
}

func (c *Client) LookupByID(ctx context.Context, entity, id string) (bool, error) {
	es := c.server.store(entity)
	es.mu.Lock()
	defer es.mu.Unlock()
	_, ok := es.records[id]
	return ok, nil
}

func (c *Client) RecommendedParallelism() int {
	return c.server.RecommendedDOP
}

func (c *Client) Clone(ctx context.Context) (bulkclient.Client, error) {
	return &Client{server: c.server}, nil
}

func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	return nil
}
