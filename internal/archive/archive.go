// Package archive reads and writes the portable schema archive (§6):
// a zip containing data_schema.xml, data.xml, and an optional
// attachments/ directory for blob fields. It is the on-disk boundary
// between the exporter (C8, a writer) and the importer (C9, a
// reader).
package archive

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
)

const (
	schemaEntryName = "data_schema.xml"
	dataEntryName   = "data.xml"
	attachmentsDir  = "attachments/"
)

// valueKind discriminates how a Record field value round-trips
// through the archive's text representation. It is independent of
// the schema's FieldType — the archive only needs to reconstruct the
// Go value, not reason about it.
type valueKind string

const (
	kindString valueKind = "string"
	kindInt    valueKind = "int"
	kindFloat  valueKind = "float"
	kindBool   valueKind = "bool"
	kindTime   valueKind = "time"
	kindRef    valueKind = "ref"
	kindOption valueKind = "option"
	kindBlob   valueKind = "blob"
)

// xmlField is one <field> element inside a <record>.
type xmlField struct {
	Name   string `xml:"name,attr"`
	Kind   string `xml:"kind,attr"`
	Entity string `xml:"entity,attr,omitempty"`
	Label  string `xml:"label,attr,omitempty"`
	Value  string `xml:",chardata"`
}

func encodeValue(v bulkclient.Value) (valueKind, string, string, string) {
	switch val := v.(type) {
	case nil:
		return kindString, "", "", ""
	case string:
		return kindString, val, "", ""
	case int:
		return kindInt, fmt.Sprintf("%d", val), "", ""
	case int64:
		return kindInt, fmt.Sprintf("%d", val), "", ""
	case float64:
		return kindFloat, fmt.Sprintf("%g", val), "", ""
	case bool:
		return kindBool, fmt.Sprintf("%t", val), "", ""
	case time.Time:
		return kindTime, val.Format(time.RFC3339Nano), "", ""
	case bulkclient.Reference:
		return kindRef, val.ID, val.Entity, ""
	case bulkclient.OptionValue:
		return kindOption, fmt.Sprintf("%d", val.Value), "", val.Label
	case []byte:
		return kindBlob, base64.StdEncoding.EncodeToString(val), "", ""
	default:
		return kindString, fmt.Sprintf("%v", val), "", ""
	}
}

func decodeValue(f xmlField) (bulkclient.Value, error) {
	switch valueKind(f.Kind) {
	case kindString, "":
		return f.Value, nil
	case kindInt:
		var n int64
		if _, err := fmt.Sscanf(f.Value, "%d", &n); err != nil {
			return nil, fmt.Errorf("archive: field %q: bad int %q: %w", f.Name, f.Value, err)
		}
		return n, nil
	case kindFloat:
		var fv float64
		if _, err := fmt.Sscanf(f.Value, "%g", &fv); err != nil {
			return nil, fmt.Errorf("archive: field %q: bad float %q: %w", f.Name, f.Value, err)
		}
		return fv, nil
	case kindBool:
		return f.Value == "true", nil
	case kindTime:
		t, err := time.Parse(time.RFC3339Nano, f.Value)
		if err != nil {
			return nil, fmt.Errorf("archive: field %q: bad timestamp %q: %w", f.Name, f.Value, err)
		}
		return t, nil
	case kindRef:
		return bulkclient.Reference{Entity: f.Entity, ID: f.Value}, nil
	case kindOption:
		var n int
		if _, err := fmt.Sscanf(f.Value, "%d", &n); err != nil {
			return nil, fmt.Errorf("archive: field %q: bad option value %q: %w", f.Name, f.Value, err)
		}
		return bulkclient.OptionValue{Value: n, Label: f.Label}, nil
	case kindBlob:
		b, err := base64.StdEncoding.DecodeString(f.Value)
		if err != nil {
			return nil, fmt.Errorf("archive: field %q: bad blob encoding: %w", f.Name, err)
		}
		return b, nil
	default:
		return f.Value, nil
	}
}
