package oaipoll

import "encoding/xml"

// ResumptionToken is part of OAI flow control (3.5). A nil token means the
// element was absent, an empty Value means the element carried no token.
type ResumptionToken struct {
	Value string `xml:",chardata"`
	// A UTCdatetime indicating when the resumptionToken ceases to be valid.
	ExpirationDate string `xml:"expirationDate,attr,omitempty"`
	// An integer indicating the cardinality of the complete list. The value
	// of completeListSize may be only an estimate of the actual cardinality
	// of the complete list and may be revised during the list request
	// sequence.
	CompleteListSize *int `xml:"completeListSize,attr,omitempty"`
	// A count of the number of elements of the complete list thus far
	// returned (i.e. cursor starts at 0).
	Cursor *int `xml:"cursor,attr,omitempty"`
}

// Header is the main response of ListIdentifiers requests and also
// transmitted in ListRecords and GetRecord.
type Header struct {
	Status     string   `xml:"status,attr,omitempty"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpec    []string `xml:"setSpec"`
}

// Deleted reports the deleted status of a header.
func (h Header) Deleted() bool {
	return h.Status == "deleted"
}

// RecordXML is a single record element, metadata is kept verbatim.
type RecordXML struct {
	Header   Header `xml:"header"`
	Metadata struct {
		Verbatim string `xml:",innerxml"`
	} `xml:"metadata"`
	Raw string `xml:",innerxml"`
}

// IdentifyXML response.
type IdentifyXML struct {
	Name              string   `xml:"repositoryName" json:"name,omitempty"`
	URL               string   `xml:"baseURL" json:"url,omitempty"`
	Version           string   `xml:"protocolVersion" json:"version,omitempty"`
	AdminEmail        []string `xml:"adminEmail" json:"email,omitempty"`
	EarliestDatestamp string   `xml:"earliestDatestamp" json:"earliest,omitempty"`
	DeletePolicy      string   `xml:"deletedRecord" json:"delete,omitempty"`
	Granularity       string   `xml:"granularity" json:"granularity,omitempty"`
	Raw               string   `xml:",innerxml" json:"-"`
}

// SetXML is a single set of a ListSets response.
type SetXML struct {
	Spec string `xml:"setSpec" json:"spec,omitempty"`
	Name string `xml:"setName" json:"name,omitempty"`
	Raw  string `xml:",innerxml" json:"-"`
}

// MetadataFormatXML is a single entry of a ListMetadataFormats response.
type MetadataFormatXML struct {
	Prefix    string `xml:"metadataPrefix" json:"prefix"`
	Schema    string `xml:"schema" json:"schema"`
	Namespace string `xml:"metadataNamespace" json:"namespace,omitempty"`
	Raw       string `xml:",innerxml" json:"-"`
}

// Response can hold most answers to a request to an OAI server.
type Response struct {
	XMLName xml.Name `xml:"OAI-PMH"`
	Date    string   `xml:"responseDate"`
	Request struct {
		Verb     string `xml:"verb,attr"`
		Endpoint string `xml:",chardata"`
	} `xml:"request"`
	Errors   []OAIError  `xml:"error"`
	Identify IdentifyXML `xml:"Identify"`

	ListMetadataFormats struct {
		Formats []MetadataFormatXML `xml:"metadataFormat"`
	} `xml:"ListMetadataFormats"`
	ListSets struct {
		Sets  []SetXML         `xml:"set"`
		Token *ResumptionToken `xml:"resumptionToken"`
	} `xml:"ListSets"`
	ListIdentifiers struct {
		Headers []Header         `xml:"header"`
		Token   *ResumptionToken `xml:"resumptionToken"`
	} `xml:"ListIdentifiers"`
	ListRecords struct {
		Records []RecordXML      `xml:"record"`
		Token   *ResumptionToken `xml:"resumptionToken"`
	} `xml:"ListRecords"`
	GetRecord struct {
		Record RecordXML `xml:"record"`
	} `xml:"GetRecord"`
}

// Record is a single unit of harvested data, as handed to a Sink. What a
// record holds depends on the verb: a metadata record, a header only, a set
// or the repository description.
type Record struct {
	Endpoint   string   `json:"endpoint" msgpack:"endpoint"`
	Verb       Verb     `json:"verb" msgpack:"verb"`
	Identifier string   `json:"identifier,omitempty" msgpack:"identifier,omitempty"`
	Datestamp  string   `json:"datestamp,omitempty" msgpack:"datestamp,omitempty"`
	SetSpec    []string `json:"setSpec,omitempty" msgpack:"setSpec,omitempty"`
	Deleted    bool     `json:"deleted,omitempty" msgpack:"deleted,omitempty"`
	// Metadata is the verbatim inner XML of the element carrying the payload.
	Metadata string `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}
