package archive

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/schema"
)

// Writer streams a schema archive to an underlying io.Writer (a file,
// typically). Entities are written one at a time without buffering
// every record in memory, matching the exporter's per-entity
// streaming requirement (§4.8).
type Writer struct {
	zw *zip.Writer

	dataEntry    io.Writer
	enc          *xml.Encoder
	openEntity   string
	associations []xmlAssociationDoc
}

// NewWriter wraps w in a zip.Writer ready to receive a schema archive.
func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// WriteSchema writes data_schema.xml from s. Call once, before
// BeginData.
func (w *Writer) WriteSchema(s *schema.Schema) error {
	entry, err := w.zw.Create(schemaEntryName)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", schemaEntryName, err)
	}
	raw := toXMLSchema(s)
	enc := xml.NewEncoder(entry)
	enc.Indent("", "  ")
	return enc.Encode(raw)
}

// BeginData opens data.xml and starts the <data> root element. Must
// be followed by BeginEntity/WriteRecord/EndEntity pairs and a final
// Close.
func (w *Writer) BeginData() error {
	entry, err := w.zw.Create(dataEntryName)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", dataEntryName, err)
	}
	w.dataEntry = entry
	w.enc = xml.NewEncoder(entry)
	return w.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "data"}})
}

// BeginEntity opens a new <entity name="..."> block. The previous
// entity, if any, must have been closed with EndEntity.
func (w *Writer) BeginEntity(name string) error {
	if w.openEntity != "" {
		return fmt.Errorf("archive: entity %q still open", w.openEntity)
	}
	w.openEntity = name
	return w.enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "entity"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: name}},
	})
}

// WriteRecord appends one <record id="..."> with its fields to the
// currently open entity block.
func (w *Writer) WriteRecord(id string, rec bulkclient.Record) error {
	if w.openEntity == "" {
		return fmt.Errorf("archive: WriteRecord called with no open entity")
	}
	start := xml.StartElement{
		Name: xml.Name{Local: "record"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: id}},
	}
	if err := w.enc.EncodeToken(start); err != nil {
		return err
	}

	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		kind, value, entity, label := encodeValue(rec[name])
		f := xmlField{Name: name, Kind: string(kind), Entity: entity, Label: label, Value: value}
		if err := w.enc.EncodeElement(f, xml.StartElement{Name: xml.Name{Local: "field"}}); err != nil {
			return fmt.Errorf("archive: encode field %q: %w", name, err)
		}
	}

	return w.enc.EncodeToken(start.End())
}

// EndEntity closes the currently open entity block.
func (w *Writer) EndEntity() error {
	if w.openEntity == "" {
		return fmt.Errorf("archive: EndEntity called with no open entity")
	}
	w.openEntity = ""
	return w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "entity"}})
}

// WriteAssociation records one source-side many-to-many link for
// relationship, flushed into data.xml's associations block on Close.
// The engine's m2m tail is small relative to entity data, so these are
// buffered rather than streamed.
func (w *Writer) WriteAssociation(relationship, fromEntity, fromID, toEntity, toID string) {
	w.associations = append(w.associations, xmlAssociationDoc{
		Relationship: relationship, FromEntity: fromEntity, FromID: fromID, ToEntity: toEntity, ToID: toID,
	})
}

// WriteAttachment stores a blob under attachments/<relPath>,
// referenced from a record field by that relative path.
func (w *Writer) WriteAttachment(relPath string, r io.Reader) error {
	entry, err := w.zw.Create(attachmentsDir + strings.TrimPrefix(relPath, "/"))
	if err != nil {
		return fmt.Errorf("archive: create attachment %s: %w", relPath, err)
	}
	_, err = io.Copy(entry, r)
	return err
}

// Close finishes the <data> root (if opened) and closes the zip
// writer. Safe to call once.
func (w *Writer) Close() error {
	if w.enc != nil {
		if len(w.associations) > 0 {
			if err := w.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "associations"}}); err != nil {
				return err
			}
			for _, a := range w.associations {
				if err := w.enc.EncodeElement(a, xml.StartElement{Name: xml.Name{Local: "association"}}); err != nil {
					return fmt.Errorf("archive: encode association: %w", err)
				}
			}
			if err := w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "associations"}}); err != nil {
				return err
			}
		}
		if err := w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "data"}}); err != nil {
			return err
		}
		if err := w.enc.Flush(); err != nil {
			return err
		}
	}
	return w.zw.Close()
}

func toXMLSchema(s *schema.Schema) xmlSchemaDoc {
	doc := xmlSchemaDoc{}
	for _, e := range s.Entities {
		xe := xmlEntityDoc{
			Name:             e.LogicalName,
			DisplayName:      e.DisplayName,
			PrimaryIDField:   e.PrimaryIDField,
			PrimaryNameField: e.PrimaryNameField,
			DisablePlugins:   e.DisablePlugins,
		}
		for _, f := range e.Fields {
			xe.Fields = append(xe.Fields, xmlFieldDoc{
				Name: f.LogicalName, DisplayName: f.DisplayName, Type: string(f.Type),
				CustomField: f.IsCustom, LookupType: f.TargetEntity, Required: f.IsRequired,
			})
		}
		for _, r := range e.Relationships {
			xe.Relationships = append(xe.Relationships, xmlRelationshipDoc{
				Name: r.Name, M2M: r.IsManyToMany, RelatedEntityName: r.EntityB,
			})
		}
		doc.Entities = append(doc.Entities, xe)
	}
	return doc
}
