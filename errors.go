package oaipoll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTooManyRequests = errors.New("too many requests")
	ErrNoHandler       = errors.New("no handler for verb")
)

// ErrorCode is one of the OAI-PMH error conditions (3.6).
type ErrorCode string

const (
	BadArgument             ErrorCode = "badArgument"
	BadResumptionToken      ErrorCode = "badResumptionToken"
	BadVerb                 ErrorCode = "badVerb"
	CannotDisseminateFormat ErrorCode = "cannotDisseminateFormat"
	IDDoesNotExist          ErrorCode = "idDoesNotExist"
	NoRecordsMatch          ErrorCode = "noRecordsMatch"
	NoMetadataFormats       ErrorCode = "noMetadataFormats"
	NoSetHierarchy          ErrorCode = "noSetHierarchy"
)

// Informational codes signal an empty result rather than a failure.
func (c ErrorCode) Informational() bool {
	switch c {
	case NoRecordsMatch, NoMetadataFormats, NoSetHierarchy:
		return true
	}
	return false
}

// OAIError wraps OAI error codes and messages.
type OAIError struct {
	Code    ErrorCode `xml:"code,attr"`
	Message string    `xml:",chardata"`
}

// Error to satisfy interface.
func (e OAIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, strings.TrimSpace(e.Message))
}

// ProtocolErrors are the operational errors of a single response. They only
// travel as an error value to consult a RetryPolicy.
type ProtocolErrors []OAIError

func (e ProtocolErrors) Error() string {
	var parts []string
	for _, err := range e {
		parts = append(parts, err.Error())
	}
	return "oai: " + strings.Join(parts, "; ")
}

// Has reports whether code occurs in the list.
func (e ProtocolErrors) Has(code ErrorCode) bool {
	for _, err := range e {
		if err.Code == code {
			return true
		}
	}
	return false
}

// TransportError is a failed HTTP exchange with a provider.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a payload that is not a well-formed OAI-PMH response.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
