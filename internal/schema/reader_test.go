package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<entities>
  <entity name="currency" displayname="Currency" primaryidfield="currencyid" primarynamefield="name">
    <fields>
      <field name="name" displayname="Name" type="text"/>
    </fields>
  </entity>
  <entity name="businessunit" displayname="Business Unit" primaryidfield="businessunitid" primarynamefield="name">
    <fields>
      <field name="name" displayname="Name" type="text"/>
      <field name="transactioncurrencyid" displayname="Currency" type="lookup" lookupType="currency"/>
    </fields>
  </entity>
</entities>`

func TestRead_ParsesEntitiesFieldsAndLookups(t *testing.T) {
	s, err := Read(strings.NewReader(sampleXML))
	require.NoError(t, err)
	require.Len(t, s.Entities, 2)

	bu, ok := s.EntityByName("BusinessUnit")
	require.True(t, ok, "lookup is case-insensitive")
	f, ok := bu.FieldByName("transactioncurrencyid")
	require.True(t, ok)
	assert.Equal(t, FieldLookup, f.Type)
	assert.Equal(t, "currency", f.TargetEntity)
}

func TestRead_RejectsDuplicateEntityNames(t *testing.T) {
	xml := `<entities>
	  <entity name="account"><fields><field name="name" type="text"/></fields></entity>
	  <entity name="Account"><fields><field name="name" type="text"/></fields></entity>
	</entities>`
	_, err := Read(strings.NewReader(xml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate entity")
}

func TestRead_RejectsFieldWithoutType(t *testing.T) {
	xml := `<entities><entity name="account"><fields><field name="name"/></fields></entity></entities>`
	_, err := Read(strings.NewReader(xml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no declared type")
}

func TestRead_RejectsLookupFieldWithoutTarget(t *testing.T) {
	xml := `<entities><entity name="account"><fields><field name="owner" type="lookup"/></fields></entity></entities>`
	_, err := Read(strings.NewReader(xml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target_entity")
}

func TestRead_RejectsM2MWithoutRelatedEntity(t *testing.T) {
	xml := `<entities><entity name="account"><fields><field name="name" type="text"/></fields>
	  <relationships><relationship name="account_contacts" m2m="true"/></relationships>
	</entity></entities>`
	_, err := Read(strings.NewReader(xml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names no related entity")
}

func TestRead_IgnoresUnknownElementsAndAttributes(t *testing.T) {
	xml := `<entities unknownattr="x">
	  <entity name="account" futureattr="y">
	    <fields><field name="name" type="text" futurefield="z"/></fields>
	    <futureelement/>
	  </entity>
	</entities>`
	s, err := Read(strings.NewReader(xml))
	require.NoError(t, err)
	require.Len(t, s.Entities, 1)
}
