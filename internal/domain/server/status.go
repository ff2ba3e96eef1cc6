package server

import (
	"sort"
)

// Tags is a set of tag names applied to a server.
type Tags map[string]struct{}

// NewTags builds a tag set from the given names.
func NewTags(names ...string) Tags {
	t := make(Tags, len(names))
	for _, name := range names {
		t[name] = struct{}{}
	}
	return t
}

// Has reports whether the set contains the named tag.
func (t Tags) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// Add inserts a tag into the set.
func (t Tags) Add(name string) { t[name] = struct{}{} }

// ContainsAll reports whether the set is a superset of other.
func (t Tags) ContainsAll(other Tags) bool {
	for name := range other {
		if !t.Has(name) {
			return false
		}
	}
	return true
}

// Disjoint reports whether the set shares no tags with other.
func (t Tags) Disjoint(other Tags) bool {
	for name := range other {
		if t.Has(name) {
			return false
		}
	}
	return true
}

// Equal reports whether two sets contain exactly the same tags.
func (t Tags) Equal(other Tags) bool {
	return len(t) == len(other) && t.ContainsAll(other)
}

// List returns the tags as a sorted slice.
func (t Tags) List() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status is the last observed state of one server. Nil pointer fields
// mean "unknown since last observation". Interest is owned by the
// cache's subscribe path; writers must leave it zero.
type Status struct {
	Address       Address
	Interest      int64
	Name          *string
	Map           *string
	ApplicationID *int64
	Players       Players
	Tags          Tags
}

// Location is a server's resolved geographic position. It is
// conclusive only when all three fields are known.
type Location struct {
	Country   string
	Latitude  float64
	Longitude float64
}

// Locator resolves server addresses to geographic locations. Lookups
// are performed by an external collaborator; implementations may
// return false when the location is not conclusively known.
type Locator interface {
	Locate(addr Address) (Location, bool)
}
