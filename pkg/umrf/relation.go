package umrf

import "fmt"

// Relation identifies a parent or child connection between two nodes by
// name and suffix, with a per-edge "required" flag and a "received" flag
// the executor flips once the parent side has actually finished.
type Relation struct {
	Name     string
	Suffix   uint
	Required bool
	Received bool
}

// FullName mirrors Umrf::getFullName's "name_suffix" composition.
func (r Relation) FullName() string {
	return fmt.Sprintf("%s_%d", r.Name, r.Suffix)
}

// Empty mirrors Umrf::Relation::empty(): a relation with no name never
// identifies a real node.
func (r Relation) Empty() bool {
	return r.Name == ""
}

// sameEdge compares name and suffix only, matching the original's
// operator== used by std::find when adding/removing/locating relations.
func (r Relation) sameEdge(other Relation) bool {
	return r.Name == other.Name && r.Suffix == other.Suffix
}
