package archive

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/schema"
)

// xmlDataDoc mirrors the <data> root Writer produces: one <entity
// name="..."> block per entity, each holding its <record id="...">
// elements directly (no extra wrapper), matching writer.go's token
// stream.
type xmlDataDoc struct {
	XMLName      xml.Name             `xml:"data"`
	Entities     []xmlDataEntity      `xml:"entity"`
	Associations []xmlAssociationDoc  `xml:"associations>association"`
}

type xmlDataEntity struct {
	Name    string         `xml:"name,attr"`
	Records []xmlRecordDoc `xml:"record"`
}

type xmlRecordDoc struct {
	ID     string     `xml:"id,attr"`
	Fields []xmlField `xml:"field"`
}

// Reader loads a schema archive previously produced by Writer. Unlike
// Writer it parses data.xml fully into memory on first access — the
// spec's streaming requirement (§4.8) applies to export, not import.
type Reader struct {
	zr      *zip.Reader
	closer  io.Closer
	schema       *schema.Schema
	records      map[string][]bulkclient.Record
	associations map[string][]Association
	loaded       bool
}

// Open opens the zip archive at path.
func Open(path string) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	return &Reader{zr: &rc.Reader, closer: rc}, nil
}

// NewReader wraps an already-opened zip archive, e.g. one held in
// memory via bytes.NewReader wrapped in a ReaderAt.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("archive: read zip: %w", err)
	}
	return &Reader{zr: zr}, nil
}

func (r *Reader) find(name string) (*zip.File, error) {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("archive: %s not found in archive", name)
}

// Schema parses and returns data_schema.xml, caching the result.
func (r *Reader) Schema() (*schema.Schema, error) {
	if r.schema != nil {
		return r.schema, nil
	}
	f, err := r.find(schemaEntryName)
	if err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	s, err := schema.Read(rc)
	if err != nil {
		return nil, err
	}
	r.schema = s
	return s, nil
}

func (r *Reader) load() error {
	if r.loaded {
		return nil
	}
	f, err := r.find(dataEntryName)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	var doc xmlDataDoc
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return fmt.Errorf("archive: decode %s: %w", dataEntryName, err)
	}

	records := make(map[string][]bulkclient.Record, len(doc.Entities))
	for _, e := range doc.Entities {
		recs := make([]bulkclient.Record, 0, len(e.Records))
		for _, rd := range e.Records {
			rec := make(bulkclient.Record, len(rd.Fields)+1)
			rec["id"] = rd.ID
			for _, f := range rd.Fields {
				v, err := decodeValue(f)
				if err != nil {
					return err
				}
				rec[f.Name] = v
			}
			recs = append(recs, rec)
		}
		records[e.Name] = recs
	}
	r.records = records

	assocs := make(map[string][]Association, len(doc.Associations))
	for _, a := range doc.Associations {
		assocs[a.Relationship] = append(assocs[a.Relationship], Association{
			Relationship: a.Relationship, FromEntity: a.FromEntity, FromID: a.FromID, ToEntity: a.ToEntity, ToID: a.ToID,
		})
	}
	r.associations = assocs

	r.loaded = true
	return nil
}

// Associations returns the source-side many-to-many links recorded
// for relationship.
func (r *Reader) Associations(relationship string) ([]Association, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	return r.associations[relationship], nil
}

// Entities returns the sorted list of entity names present in
// data.xml.
func (r *Reader) Entities() ([]string, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Records returns entity's records as loaded from data.xml. The
// returned slice must not be mutated by the caller — it is shared
// with the Reader's cache.
func (r *Reader) Records(entity string) ([]bulkclient.Record, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	return r.records[entity], nil
}

// Attachment opens an attachment by its relative path (as stored by
// Writer.WriteAttachment).
func (r *Reader) Attachment(relPath string) (io.ReadCloser, error) {
	f, err := r.find(attachmentsDir + relPath)
	if err != nil {
		return nil, err
	}
	return f.Open()
}

// Close releases the underlying zip file, if Open was used to create
// this Reader.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
