// Package schema implements the Entity Schema model and its reader
// (C6): parsing the archive's data_schema.xml into typed entities,
// fields, and relationships, enforcing the shape invariants from
// spec §3/§4.6.
package schema

import "strings"

// FieldType enumerates the value kinds a Field may carry, per §3.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldInteger   FieldType = "integer"
	FieldDecimal   FieldType = "decimal"
	FieldBoolean   FieldType = "boolean"
	FieldTimestamp FieldType = "timestamp"
	FieldIdentifier FieldType = "identifier"
	FieldLookup    FieldType = "lookup"
	FieldOwner     FieldType = "owner"
	FieldCustomer  FieldType = "customer"
	FieldParent    FieldType = "parent"
	FieldOption    FieldType = "option"
	FieldMemo      FieldType = "memo"
	FieldImage     FieldType = "image"
)

// IsLookupLike reports whether t is one of the lookup-like kinds that
// carries a TargetEntity and therefore produces a Dependency Edge,
// per §3's "only target_entity distinguishes lookup-like fields".
func (t FieldType) IsLookupLike() bool {
	switch t {
	case FieldLookup, FieldOwner, FieldCustomer, FieldParent:
		return true
	default:
		return false
	}
}

// Field is one entity attribute, per §3.
type Field struct {
	LogicalName  string
	DisplayName  string
	Type         FieldType
	TargetEntity string
	IsRequired   bool
	IsCustom     bool
}

// Relationship is a named relationship between two entities, per §3.
// Many-to-many relationships are not directional.
type Relationship struct {
	Name         string
	EntityA      string
	EntityB      string
	IsManyToMany bool
}

// Entity is one logical entity, per §3.
type Entity struct {
	LogicalName     string
	DisplayName     string
	PrimaryIDField  string
	PrimaryNameField string
	DisablePlugins  bool
	Fields          []Field
	Relationships   []Relationship
}

// FieldByName looks up a field by case-insensitive logical name, per
// §3's "all lookups compare lowercased".
func (e *Entity) FieldByName(name string) (Field, bool) {
	want := strings.ToLower(name)
	for _, f := range e.Fields {
		if strings.ToLower(f.LogicalName) == want {
			return f, true
		}
	}
	return Field{}, false
}

// Schema is the complete parsed schema: every entity known to the
// migration, keyed by lowercased logical name for the reader's
// lookups.
type Schema struct {
	Entities []Entity

	index map[string]int
}

// Normalize builds the case-insensitive name index. Called once after
// parsing or after hand-constructing a Schema in tests.
func (s *Schema) Normalize() {
	s.index = make(map[string]int, len(s.Entities))
	for i, e := range s.Entities {
		s.index[strings.ToLower(e.LogicalName)] = i
	}
}

// EntityByName looks up an entity by case-insensitive logical name.
func (s *Schema) EntityByName(name string) (*Entity, bool) {
	if s.index == nil {
		s.Normalize()
	}
	i, ok := s.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &s.Entities[i], true
}

// ManyToManyRelationships returns every many-to-many relationship declared
// across all entities, de-duplicated by name.
func (s *Schema) ManyToManyRelationships() []Relationship {
	seen := make(map[string]bool)
	var out []Relationship
	for _, e := range s.Entities {
		for _, r := range e.Relationships {
			if !r.IsManyToMany || seen[strings.ToLower(r.Name)] {
				continue
			}
			seen[strings.ToLower(r.Name)] = true
			out = append(out, r)
		}
	}
	return out
}
