package archive

import "encoding/xml"

// xmlSchemaDoc mirrors data_schema.xml's shape (§6), independent of
// internal/schema's own unexported wire types so archive can encode
// and decode it without importing schema's parser internals.
type xmlSchemaDoc struct {
	XMLName  xml.Name        `xml:"entities"`
	Entities []xmlEntityDoc  `xml:"entity"`
}

type xmlEntityDoc struct {
	Name             string                `xml:"name,attr"`
	DisplayName      string                `xml:"displayname,attr,omitempty"`
	PrimaryIDField   string                `xml:"primaryidfield,attr,omitempty"`
	PrimaryNameField string                `xml:"primarynamefield,attr,omitempty"`
	DisablePlugins   bool                  `xml:"disableplugins,attr,omitempty"`
	Fields           []xmlFieldDoc         `xml:"fields>field"`
	Relationships    []xmlRelationshipDoc  `xml:"relationships>relationship,omitempty"`
}

type xmlFieldDoc struct {
	Name        string `xml:"name,attr"`
	DisplayName string `xml:"displayname,attr,omitempty"`
	Type        string `xml:"type,attr"`
	CustomField bool   `xml:"customfield,attr,omitempty"`
	LookupType  string `xml:"lookupType,attr,omitempty"`
	Required    bool   `xml:"required,attr,omitempty"`
}

type xmlRelationshipDoc struct {
	Name              string `xml:"name,attr"`
	M2M               bool   `xml:"m2m,attr"`
	RelatedEntityName string `xml:"relatedEntityName,attr,omitempty"`
}

// xmlAssociationDoc is one exported many-to-many link, carried as a
// source-side `<association>` element inside data.xml's associations
// block (§4.8/§4.9 Phase D).
type xmlAssociationDoc struct {
	Relationship string `xml:"relationship,attr"`
	FromEntity   string `xml:"fromEntity,attr"`
	FromID       string `xml:"from,attr"`
	ToEntity     string `xml:"toEntity,attr"`
	ToID         string `xml:"toId,attr"`
}

// Association is one source-side many-to-many link as read back from
// an archive, before its endpoints are translated through an identity
// map.
type Association struct {
	Relationship string
	FromEntity   string
	FromID       string
	ToEntity     string
	ToID         string
}
