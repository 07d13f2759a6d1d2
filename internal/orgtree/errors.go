package orgtree

import (
	"errors"
	"strings"
)

// Kind classifies a structural invariant violation.
type Kind string

const (
	KindInvalidName    Kind = "invalid_name"
	KindParentNotFound Kind = "parent_not_found"
	KindDuplicateName  Kind = "duplicate_name"
	KindCycle          Kind = "cycle"
	KindMaxDepth       Kind = "max_depth"
	KindInactiveParent Kind = "inactive_parent"
)

// ValidationError reports one violated rule together with the request field
// the caller should highlight.
type ValidationError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidationErrors is the full set of violations found for one proposed
// change, in check order. errors.As against *ValidationError yields the first.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes each violation to errors.Is / errors.As.
func (v ValidationErrors) Unwrap() []error {
	out := make([]error, len(v))
	for i, e := range v {
		out[i] = e
	}
	return out
}

// Has reports whether a violation of kind k is present.
func (v ValidationErrors) Has(k Kind) bool {
	for _, e := range v {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// KindOf returns the kind of the first ValidationError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}

// IsValidation reports whether err carries a structural violation.
func IsValidation(err error) bool {
	_, ok := KindOf(err)
	return ok
}
