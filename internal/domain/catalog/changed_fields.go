package catalog

import (
	"encoding/json"
	"sort"
)

// Field names a mutable attribute of an Entry
type Field string

const (
	FieldName          Field = "name"
	FieldBrand         Field = "brand"
	FieldPrice         Field = "price"
	FieldAvailability  Field = "availability"
	FieldOriginalPrice Field = "original_price"
	FieldCurrency      Field = "currency"
	FieldURL           Field = "url"
	FieldImageURL      Field = "image_url"
)

// ChangedFields is the set of fields an upsert modified
type ChangedFields map[Field]struct{}

// NewChangedFields builds a set from fields
func NewChangedFields(fields ...Field) ChangedFields {
	c := make(ChangedFields, len(fields))
	for _, f := range fields {
		c.Add(f)
	}
	return c
}

// Add puts f in the set
func (c ChangedFields) Add(f Field) {
	c[f] = struct{}{}
}

// Has reports whether f is in the set
func (c ChangedFields) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// Len returns the number of changed fields
func (c ChangedFields) Len() int {
	return len(c)
}

// List returns the fields in a stable order
func (c ChangedFields) List() []Field {
	out := make([]Field, 0, len(c))
	for f := range c {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the field names in a stable order
func (c ChangedFields) Strings() []string {
	fields := c.List()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

// AffectsMatching reports whether the change can move the entry's match scores
func (c ChangedFields) AffectsMatching() bool {
	return c.Has(FieldName) || c.Has(FieldBrand) || c.Has(FieldPrice) || c.Has(FieldAvailability)
}

// MarshalJSON renders the set as a sorted list
func (c ChangedFields) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Strings())
}
