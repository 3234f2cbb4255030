package sink

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/miku/oaipoll"
)

// DefaultNameSpaces are declared on the root element.
var DefaultNameSpaces = map[string]string{
	"xsi":    "http://www.w3.org/2001/XMLSchema-instance",
	"dc":     "http://purl.org/dc/elements/1.1/",
	"oai_dc": "http://www.openarchives.org/OAI/2.0/oai_dc/",
}

type innerXML struct {
	Inner string `xml:",innerxml"`
}

// element is the serialized form of a record.
type element struct {
	XMLName    xml.Name `xml:"record"`
	Verb       string   `xml:"verb,attr,omitempty"`
	Identifier string   `xml:"identifier,attr,omitempty"`
	Datestamp  string   `xml:"datestamp,attr,omitempty"`
	Status     string   `xml:"status,attr,omitempty"`
	SetSpec    []string `xml:"setSpec,omitempty"`
	Metadata   innerXML `xml:"metadata"`
}

// Writer writes records as XML to a writer. With a RootTag, all records are
// wrapped into a single synthetic root element, which is closed by Close.
type Writer struct {
	// RootTag is an optional root element.
	RootTag string
	// NameSpaces allow to add custom XML namespace declarations to the root element.
	NameSpaces map[string]string

	mu      sync.Mutex
	w       io.Writer
	started bool
}

// NewWriter creates a writer sink without root element.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, NameSpaces: DefaultNameSpaces}
}

// startDocument inserts a root tag, if given.
func (s *Writer) startDocument() error {
	s.started = true
	if s.RootTag == "" {
		return nil
	}
	var nslist []string
	for k, v := range s.NameSpaces {
		nslist = append(nslist, fmt.Sprintf(`xmlns:%s="%s"`, k, v))
	}
	sort.Strings(nslist)
	tag := "<" + s.RootTag
	if len(nslist) > 0 {
		tag += " " + strings.Join(nslist, " ")
	}
	_, err := io.WriteString(s.w, tag+">")
	return err
}

// Emit writes a single record.
func (s *Writer) Emit(_ context.Context, r oaipoll.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		if err := s.startDocument(); err != nil {
			return err
		}
	}
	e := element{
		Verb:       string(r.Verb),
		Identifier: r.Identifier,
		Datestamp:  r.Datestamp,
		SetSpec:    r.SetSpec,
		Metadata:   innerXML{Inner: r.Metadata},
	}
	if r.Deleted {
		e.Status = "deleted"
	}
	b, err := xml.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.w.Write(append(b, '\n'))
	return err
}

// Close closes the root tag. An empty harvest still yields a well-formed
// document.
func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RootTag == "" {
		return nil
	}
	if !s.started {
		if err := s.startDocument(); err != nil {
			return err
		}
	}
	_, err := io.WriteString(s.w, "</"+s.RootTag+">\n")
	return err
}
