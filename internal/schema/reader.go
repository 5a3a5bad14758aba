package schema

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// xmlSchema is the raw wire shape of data_schema.xml, per §6:
// entities with {name, displayname, primaryidfield, primarynamefield,
// disableplugins}, fields with {name, displayname, type, customfield,
// lookupType?}, and relationships with {name, m2m, relatedEntityName}.
// Unknown elements/attributes are ignored for forward compatibility
// (they simply have no corresponding struct field).
type xmlSchema struct {
	XMLName  xml.Name      `xml:"entities"`
	Entities []xmlEntity   `xml:"entity"`
}

type xmlEntity struct {
	Name             string             `xml:"name,attr"`
	DisplayName      string             `xml:"displayname,attr"`
	PrimaryIDField   string             `xml:"primaryidfield,attr"`
	PrimaryNameField string             `xml:"primarynamefield,attr"`
	DisablePlugins   bool               `xml:"disableplugins,attr"`
	Fields           []xmlField         `xml:"fields>field"`
	Relationships    []xmlRelationship  `xml:"relationships>relationship"`
}

type xmlField struct {
	Name        string `xml:"name,attr"`
	DisplayName string `xml:"displayname,attr"`
	Type        string `xml:"type,attr"`
	CustomField bool   `xml:"customfield,attr"`
	LookupType  string `xml:"lookupType,attr"`
	Required    bool   `xml:"required,attr"`
}

type xmlRelationship struct {
	Name              string `xml:"name,attr"`
	M2M               bool   `xml:"m2m,attr"`
	RelatedEntityName string `xml:"relatedEntityName,attr"`
}

// Read parses data_schema.xml from r, validating the shape
// invariants from §4.6: unique entity logical names, every field has
// a declared type, lookup-typed fields carry target_entity, and m2m
// relationships name both endpoint entities. Violations are collected
// and returned together as ParseErrors with line context rather than
// failing on the first one, so operators see the whole list.
func Read(r io.Reader) (*Schema, error) {
	dec := xml.NewDecoder(r)

	raw, lines, err := decodeWithLines(dec)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("malformed XML: %v", err)}
	}

	var errs ParseErrors
	seen := make(map[string]bool, len(raw.Entities))
	entities := make([]Entity, 0, len(raw.Entities))

	for i, xe := range raw.Entities {
		line := lines[i]
		name := strings.ToLower(xe.Name)
		if xe.Name == "" {
			errs = append(errs, &ParseError{Line: line, Message: "entity missing name"})
			continue
		}
		if seen[name] {
			errs = append(errs, &ParseError{Line: line, Message: fmt.Sprintf("duplicate entity logical name %q", xe.Name)})
			continue
		}
		seen[name] = true

		entity := Entity{
			LogicalName:      xe.Name,
			DisplayName:      xe.DisplayName,
			PrimaryIDField:   xe.PrimaryIDField,
			PrimaryNameField: xe.PrimaryNameField,
			DisablePlugins:   xe.DisablePlugins,
		}

		for _, xf := range xe.Fields {
			ft := FieldType(strings.ToLower(xf.Type))
			if xf.Type == "" {
				errs = append(errs, &ParseError{Line: line, Message: fmt.Sprintf("entity %q field %q has no declared type", xe.Name, xf.Name)})
				continue
			}
			field := Field{
				LogicalName:  xf.Name,
				DisplayName:  xf.DisplayName,
				Type:         ft,
				TargetEntity: xf.LookupType,
				IsRequired:   xf.Required,
				IsCustom:     xf.CustomField,
			}
			if ft.IsLookupLike() && field.TargetEntity == "" {
				errs = append(errs, &ParseError{Line: line, Message: fmt.Sprintf("entity %q field %q is lookup-typed but has no target_entity", xe.Name, xf.Name)})
				continue
			}
			entity.Fields = append(entity.Fields, field)
		}

		for _, xr := range xe.Relationships {
			if xr.M2M && xr.RelatedEntityName == "" {
				errs = append(errs, &ParseError{Line: line, Message: fmt.Sprintf("entity %q relationship %q is many-to-many but names no related entity", xe.Name, xr.Name)})
				continue
			}
			entity.Relationships = append(entity.Relationships, Relationship{
				Name:         xr.Name,
				EntityA:      xe.Name,
				EntityB:      xr.RelatedEntityName,
				IsManyToMany: xr.M2M,
			})
		}

		entities = append(entities, entity)
	}

	if err := errs.asError(); err != nil {
		return nil, err
	}

	s := &Schema{Entities: entities}
	s.Normalize()
	return s, nil
}

// decodeWithLines walks the token stream manually so each top-level
// <entity> element can be decoded with xml.Decoder.DecodeElement
// while recording the line it started on (via InputPos), giving
// ParseError real line context instead of none at all.
func decodeWithLines(dec *xml.Decoder) (xmlSchema, []int, error) {
	var raw xmlSchema
	var lines []int

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw, nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local == "entities" {
			raw.XMLName = se.Name
			continue
		}
		if se.Name.Local != "entity" {
			if err := dec.Skip(); err != nil {
				return raw, nil, err
			}
			continue
		}
		line, _ := dec.InputPos()
		var xe xmlEntity
		if err := dec.DecodeElement(&xe, &se); err != nil {
			return raw, nil, err
		}
		raw.Entities = append(raw.Entities, xe)
		lines = append(lines, line)
	}
	return raw, lines, nil
}

// ParseInt is a small helper for translating schema option-value
// attributes: it reports the parsed integer and whether s parsed.
// Nothing in this module calls it.
func ParseInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
