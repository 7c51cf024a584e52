// Package umrf implements the Unified Meaning Representation Format data
// model: parameters, parameter bags, parent/child relations and node
// descriptors. It carries no execution semantics of its own.
package umrf

// Parameter is a single named, typed slot of data flowing in or out of a
// node. Data is opaque to the engine; only the owning action knows how to
// interpret the bytes.
type Parameter struct {
	Name          string
	Type          string
	Required      bool
	Updatable     bool
	AllowedValues []string
	Data          []byte
}

// DataSize mirrors the original Umrf's getDataSize() accessor used by
// requiredParentsFinished-style checks.
func (p Parameter) DataSize() int {
	return len(p.Data)
}

// IsEqualNoData compares everything except Data: used when deciding whether
// two parameter descriptors describe "the same slot", irrespective of
// whatever value currently sits in it.
func (p Parameter) IsEqualNoData(other Parameter) bool {
	return p.Name == other.Name &&
		p.Type == other.Type &&
		p.Required == other.Required &&
		p.Updatable == other.Updatable &&
		sameAllowedValues(p.AllowedValues, other.AllowedValues)
}

// IsEqualNoDataNoUpdate additionally ignores the Updatable flag, matching
// the structural-no-update comparison used by graph update admission.
func (p Parameter) IsEqualNoDataNoUpdate(other Parameter) bool {
	return p.Name == other.Name &&
		p.Type == other.Type &&
		p.Required == other.Required &&
		sameAllowedValues(p.AllowedValues, other.AllowedValues)
}

// sameAllowedValues compares allowed_values as a set, per spec §3's
// Parameter tuple, ignoring order and duplicates.
func sameAllowedValues(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := setA[v]; !ok {
			return false
		}

		setB[v] = struct{}{}
	}

	return len(setA) == len(setB)
}
