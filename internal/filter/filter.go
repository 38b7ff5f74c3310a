// Package filter implements the partition selector used to scope
// serialization, sync sessions and FSIC computation to a subset of the
// store.
package filter

import (
	"github.com/pkg/errors"

	"replistore/internal/errs"
)

// universalKey is the reserved SDS key for the wildcard filter ("", "").
const universalKey = "+"

// Filter is an ordered (facility, user) partition selector. The empty
// string on either axis means "any" (wildcard) on that axis.
type Filter struct {
	Facility string
	User     string
}

// Universal is the ("", "") filter that matches every record.
var Universal = Filter{}

// New constructs a Filter and validates it. A non-empty User requires a
// non-empty Facility; the reverse is allowed.
func New(facility, user string) (Filter, error) {
	f := Filter{Facility: facility, User: user}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// Validate enforces the filter invariant: user non-empty implies facility
// non-empty. It is called from every entry point that accepts a caller
// supplied filter (serialize, pull/push initiation, FSIC diff) so the
// rejection is centralized rather than duplicated per call site.
func (f Filter) Validate() error {
	if f.Facility == "" && f.User != "" {
		return errors.Wrapf(errs.InvalidFilter, "facility is wildcard but user %q is not", f.User)
	}
	return nil
}

// IsSubset reports whether f is a subset of g: for each axis, either g's
// component is "" (wildcard) or g's component equals f's component.
func (f Filter) IsSubset(g Filter) (bool, error) {
	if err := f.Validate(); err != nil {
		return false, err
	}
	if err := g.Validate(); err != nil {
		return false, err
	}
	if g.Facility != "" && g.Facility != f.Facility {
		return false, nil
	}
	if g.User != "" && g.User != f.User {
		return false, nil
	}
	return true, nil
}

// Key returns the SDS filter-key serialization: facility + "+" + user,
// with the universal filter ("", "") collapsing to the reserved "+" key.
func (f Filter) Key() string {
	if f == Universal {
		return universalKey
	}
	return f.Facility + "+" + f.User
}

// SupersetKeys returns the SDS keys that are supersets of f, in the order
// calcFSIC must consult them: the universal key, then the facility-only
// key (if facility is non-empty), then the fully-qualified key (if both
// components are non-empty).
func (f Filter) SupersetKeys() []string {
	keys := []string{universalKey}
	if f.Facility == "" {
		return keys
	}
	keys = append(keys, f.Facility+"+")
	if f.User == "" {
		return keys
	}
	keys = append(keys, f.Facility+"+"+f.User)
	return keys
}

// String implements fmt.Stringer for logging.
func (f Filter) String() string {
	return f.Key()
}
