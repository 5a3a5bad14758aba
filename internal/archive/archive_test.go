package archive

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/schema"
)

func TestWriterReader_RoundTripsSchemaAndRecords(t *testing.T) {
	s := &schema.Schema{Entities: []schema.Entity{
		{LogicalName: "account", PrimaryIDField: "accountid", Fields: []schema.Field{
			{LogicalName: "name", Type: schema.FieldText},
			{LogicalName: "ownerid", Type: schema.FieldOwner, TargetEntity: "systemuser"},
		}},
	}}
	s.Normalize()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteSchema(s))
	require.NoError(t, w.BeginData())
	require.NoError(t, w.BeginEntity("account"))

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := bulkclient.Record{
		"name":    "Acme Corp",
		"revenue": int64(42),
		"active":  true,
		"created": ts,
		"ownerid": bulkclient.Reference{Entity: "systemuser", ID: "u-1"},
		"rating":  bulkclient.OptionValue{Value: 2, Label: "Gold"},
	}
	require.NoError(t, w.WriteRecord("a-1", rec))
	require.NoError(t, w.EndEntity())
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	readSchema, err := r.Schema()
	require.NoError(t, err)
	require.Len(t, readSchema.Entities, 1)
	assert.Equal(t, "account", readSchema.Entities[0].LogicalName)
	ownerField, ok := readSchema.Entities[0].FieldByName("ownerid")
	require.True(t, ok)
	assert.Equal(t, schema.FieldOwner, ownerField.Type)
	assert.Equal(t, "systemuser", ownerField.TargetEntity)

	entities, err := r.Entities()
	require.NoError(t, err)
	assert.Equal(t, []string{"account"}, entities)

	records, err := r.Records("account")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, "a-1", got["id"])
	assert.Equal(t, "Acme Corp", got["name"])
	assert.Equal(t, int64(42), got["revenue"])
	assert.Equal(t, true, got["active"])
	assert.Equal(t, ts, got["created"])
	assert.Equal(t, bulkclient.Reference{Entity: "systemuser", ID: "u-1"}, got["ownerid"])
	assert.Equal(t, bulkclient.OptionValue{Value: 2, Label: "Gold"}, got["rating"])
}

func TestWriterReader_Attachment(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteSchema(&schema.Schema{}))
	require.NoError(t, w.WriteAttachment("account/a-1/logo.png", bytes.NewReader([]byte("binary-data"))))
	require.NoError(t, w.BeginData())
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	rc, err := r.Attachment("account/a-1/logo.png")
	require.NoError(t, err)
	defer rc.Close()

	data := make([]byte, len("binary-data"))
	_, err = rc.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "binary-data", string(data))
}
