package oaipoll

import "strings"

// MorePages decides, whether a resumption token asks for another request.
type MorePages func(*ResumptionToken) bool

// LeadingSpaceEnds continues on any non-empty token value, except values
// starting with a space character. Some providers send a blank token instead
// of an empty element on the last page. Line breaks and tabs do not count,
// pretty-printed tokens continue. An empty element ends the list as well
// (3.5), although the value is present. This is the default.
func LeadingSpaceEnds(t *ResumptionToken) bool {
	return t != nil && t.Value != "" && !strings.HasPrefix(t.Value, " ")
}

// NonEmptyContinues is the plain protocol rule: an empty resumptionToken
// element ends a list, anything else continues it.
func NonEmptyContinues(t *ResumptionToken) bool {
	return t != nil && strings.TrimSpace(t.Value) != ""
}

// MorePagesByName returns a predicate by configuration name, "leading-space"
// or "non-empty". Unknown names yield LeadingSpaceEnds.
func MorePagesByName(name string) MorePages {
	switch name {
	case "non-empty", "strict":
		return NonEmptyContinues
	}
	return LeadingSpaceEnds
}

// tokenValue returns the token as sent to the provider. Tokens are opaque and
// go out verbatim, unless the value spans lines: that is pretty-printed XML
// and the surrounding white space is dropped.
func tokenValue(t *ResumptionToken) string {
	if strings.ContainsAny(t.Value, "\r\n") {
		return strings.TrimSpace(t.Value)
	}
	return t.Value
}
