//  Copyright 2015 by Leipzig University Library, http://ub.uni-leipzig.de
//                    The Finc Authors, http://finc.info
//                    Martin Czygan, <martin.czygan@uni-leipzig.de>
//
// This file is part of some open source application.
//
// Some open source application is free software: you can redistribute
// it and/or modify it under the terms of the GNU General Public
// License as published by the Free Software Foundation, either
// version 3 of the License, or (at your option) any later version.
//
// Some open source application is distributed in the hope that it will
// be useful, but WITHOUT ANY WARRANTY; without even the implied warranty
// of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Foobar.  If not, see <http://www.gnu.org/licenses/>.
//
// @license GPL-3.0+ <http://spdx.org/licenses/GPL-3.0+>
//
package oaipoll

import (
	"errors"
	"fmt"
	"net/url"
)

// Version of the library and the command line tool.
const Version = "0.2.0"

var (
	ErrNoEndpoint = errors.New("request: an endpoint is required")
	ErrNoVerb     = errors.New("no verb")
	ErrBadVerb    = errors.New("bad verb")

	// UserAgent to use for requests
	UserAgent = fmt.Sprintf("oaipoll/%s (https://github.com/miku/oaipoll)", Version)
	// DefaultFormat should be supported by most endpoints.
	DefaultFormat = "oai_dc"
)

// Verb is one of the OAI-PMH request types (4. Protocol Requests and
// Responses).
type Verb string

const (
	Identify            Verb = "Identify"
	ListRecords         Verb = "ListRecords"
	ListIdentifiers     Verb = "ListIdentifiers"
	ListSets            Verb = "ListSets"
	ListMetadataFormats Verb = "ListMetadataFormats"
	GetRecord           Verb = "GetRecord"
)

// OAIVerbs lists the verbs this package can request.
var OAIVerbs = map[Verb]bool{
	Identify:            true,
	ListRecords:         true,
	ListIdentifiers:     true,
	ListSets:            true,
	ListMetadataFormats: true,
	GetRecord:           true,
}

// ParseVerb returns the verb for s or ErrBadVerb.
func ParseVerb(s string) (Verb, error) {
	if s == "" {
		return "", ErrNoVerb
	}
	v := Verb(s)
	if !OAIVerbs[v] {
		return "", fmt.Errorf("%w: %s", ErrBadVerb, s)
	}
	return v, nil
}

// Paginates is true for the list requests (3.5), which may carry a
// resumptionToken.
func (v Verb) Paginates() bool {
	switch v {
	case ListRecords, ListIdentifiers, ListSets:
		return true
	}
	return false
}

// Request can hold any parameter, that you want to send to an OAI server.
// Empty strings are absent parameters.
type Request struct {
	Endpoint        string
	Verb            Verb
	Set             string
	From            string
	Until           string
	Prefix          string
	Identifier      string
	ResumptionToken string
}

// URL returns the absolute URL for a given request. Catches basic errors like
// missing endpoint or bad verb. A resumption token suppresses all other
// arguments but the verb.
func (r Request) URL() (s string, err error) {
	if r.Endpoint == "" {
		return s, ErrNoEndpoint
	}
	if r.Verb == "" {
		return s, ErrNoVerb
	}
	if !OAIVerbs[r.Verb] {
		return s, ErrBadVerb
	}

	values := url.Values{}
	values.Add("verb", string(r.Verb))

	// Collectively these requests are called list requests (3.5):
	// ListIdentifiers, ListRecords, ListSets
	if r.ResumptionToken != "" {
		// An exclusive argument with a value that is the flow control token.
		values.Add("resumptionToken", r.ResumptionToken)
		return fmt.Sprintf("%s?%s", r.Endpoint, values.Encode()), nil
	}

	maybeAdd := func(k, v string) {
		if v != "" {
			values.Add(k, v)
		}
	}
	switch r.Verb {
	case ListRecords, ListIdentifiers:
		maybeAdd("from", r.From)
		maybeAdd("until", r.Until)
		maybeAdd("set", r.Set)
		maybeAdd("metadataPrefix", r.Prefix)
	case GetRecord:
		maybeAdd("identifier", r.Identifier)
		maybeAdd("metadataPrefix", r.Prefix)
	case ListMetadataFormats:
		maybeAdd("identifier", r.Identifier)
	}
	return fmt.Sprintf("%s?%s", r.Endpoint, values.Encode()), nil
}
