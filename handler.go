package oaipoll

import (
	"fmt"
	"strings"
)

// Handler knows where a verb keeps its records and its resumption token.
type Handler interface {
	Records(endpoint string, resp Response) []Record
	// Token returns nil for verbs, that never paginate.
	Token(resp Response) *ResumptionToken
}

// HandlerFor returns the handler for a verb. The set of handlers is closed.
func HandlerFor(verb Verb) (Handler, error) {
	switch verb {
	case ListRecords:
		return listRecordsHandler{}, nil
	case ListIdentifiers:
		return listIdentifiersHandler{}, nil
	case ListSets:
		return listSetsHandler{}, nil
	case GetRecord:
		return getRecordHandler{}, nil
	case Identify:
		return identifyHandler{}, nil
	case ListMetadataFormats:
		return listMetadataFormatsHandler{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoHandler, verb)
}

func fromRecordXML(endpoint string, verb Verb, r RecordXML) Record {
	return Record{
		Endpoint:   endpoint,
		Verb:       verb,
		Identifier: strings.TrimSpace(r.Header.Identifier),
		Datestamp:  strings.TrimSpace(r.Header.Datestamp),
		SetSpec:    r.Header.SetSpec,
		Deleted:    r.Header.Deleted(),
		Metadata:   strings.TrimSpace(r.Metadata.Verbatim),
	}
}

type listRecordsHandler struct{}

func (listRecordsHandler) Records(endpoint string, resp Response) []Record {
	var records []Record
	for _, r := range resp.ListRecords.Records {
		records = append(records, fromRecordXML(endpoint, ListRecords, r))
	}
	return records
}

func (listRecordsHandler) Token(resp Response) *ResumptionToken {
	return resp.ListRecords.Token
}

type listIdentifiersHandler struct{}

func (listIdentifiersHandler) Records(endpoint string, resp Response) []Record {
	var records []Record
	for _, h := range resp.ListIdentifiers.Headers {
		records = append(records, Record{
			Endpoint:   endpoint,
			Verb:       ListIdentifiers,
			Identifier: strings.TrimSpace(h.Identifier),
			Datestamp:  strings.TrimSpace(h.Datestamp),
			SetSpec:    h.SetSpec,
			Deleted:    h.Deleted(),
		})
	}
	return records
}

func (listIdentifiersHandler) Token(resp Response) *ResumptionToken {
	return resp.ListIdentifiers.Token
}

type listSetsHandler struct{}

func (listSetsHandler) Records(endpoint string, resp Response) []Record {
	var records []Record
	for _, s := range resp.ListSets.Sets {
		records = append(records, Record{
			Endpoint:   endpoint,
			Verb:       ListSets,
			Identifier: strings.TrimSpace(s.Spec),
			Metadata:   strings.TrimSpace(s.Raw),
		})
	}
	return records
}

func (listSetsHandler) Token(resp Response) *ResumptionToken {
	return resp.ListSets.Token
}

type getRecordHandler struct{}

func (getRecordHandler) Records(endpoint string, resp Response) []Record {
	r := resp.GetRecord.Record
	if r.Header.Identifier == "" && r.Raw == "" {
		return nil
	}
	return []Record{fromRecordXML(endpoint, GetRecord, r)}
}

func (getRecordHandler) Token(Response) *ResumptionToken { return nil }

type identifyHandler struct{}

func (identifyHandler) Records(endpoint string, resp Response) []Record {
	id := resp.Identify
	if id.Raw == "" {
		return nil
	}
	return []Record{{
		Endpoint:   endpoint,
		Verb:       Identify,
		Identifier: strings.TrimSpace(id.URL),
		Datestamp:  strings.TrimSpace(resp.Date),
		Metadata:   strings.TrimSpace(id.Raw),
	}}
}

func (identifyHandler) Token(Response) *ResumptionToken { return nil }

type listMetadataFormatsHandler struct{}

func (listMetadataFormatsHandler) Records(endpoint string, resp Response) []Record {
	var records []Record
	for _, f := range resp.ListMetadataFormats.Formats {
		records = append(records, Record{
			Endpoint:   endpoint,
			Verb:       ListMetadataFormats,
			Identifier: strings.TrimSpace(f.Prefix),
			Metadata:   strings.TrimSpace(f.Raw),
		})
	}
	return records
}

func (listMetadataFormatsHandler) Token(Response) *ResumptionToken { return nil }
