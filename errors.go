package filings

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing the package boundary. Every public
// operation returns either a value or a tagged error; nothing panics across
// the API surface.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota

	// ErrRateLimited means the archive answered 429 and retries were
	// exhausted. Callers should back off for minutes before trying again.
	ErrRateLimited

	// ErrForbidden means the archive answered 403, usually because the
	// identifying header violated its access policy. Not retryable.
	ErrForbidden

	// ErrNotFound is fatal for a single URL. The manifest resolver absorbs
	// these while walking its fallback tiers.
	ErrNotFound

	// ErrNetwork covers transport failures and 5xx responses.
	ErrNetwork

	// ErrBadContent means the response arrived but was empty or of an
	// unusable content type.
	ErrBadContent

	// ErrDocumentNotFound means every resolution tier was exhausted without
	// locating a usable document for the filing.
	ErrDocumentNotFound

	// ErrMalformedContent means a parser found no recognizable structure
	// at all in its input.
	ErrMalformedContent
)

func (k ErrorKind) String() string {
	switch k {
	case ErrRateLimited:
		return "rate_limited"
	case ErrForbidden:
		return "forbidden"
	case ErrNotFound:
		return "not_found"
	case ErrNetwork:
		return "network"
	case ErrBadContent:
		return "bad_content"
	case ErrDocumentNotFound:
		return "document_not_found"
	case ErrMalformedContent:
		return "malformed_content"
	default:
		return "unknown"
	}
}

// FetchError is the tagged error returned by the fetch client and the
// manifest resolver.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.URL)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err (or anything it wraps) is a FetchError of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// Warning codes attached to extraction results. Warnings never abort the
// pipeline; they travel with the result for the caller to log or store.
const (
	WarnNoFacts        = "no_facts"
	WarnContextDropped = "context_dropped"
	WarnDanglingRef    = "dangling_ref"
	WarnSmallDocument  = "small_document"
	WarnNoSections     = "no_sections"
	WarnIndexPage      = "index_page"
)

// Warning is a non-fatal data-quality finding.
type Warning struct {
	Code    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

func warnf(code, format string, args ...interface{}) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}
