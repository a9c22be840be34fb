// Package query implements the JSON query documents accepted at the outer
// boundary of a docstore-backed service: a restricted predicate language
// that is parsed without reflection and converted to driver-native shapes
// against a field map derived from the target document type.
package query

import (
	"github.com/bytedance/sonic"
)

// Where is a predicate tree. Keys are document field names or one of the
// whitelisted operators; bare values are shorthand for {"eq": value}.
type Where map[string]any

// AndOrCondition is the operand list of an and/or node.
type AndOrCondition []Where

// Fields is a projection: true includes a field, false excludes it.
// Inclusion and exclusion cannot be mixed (except for _id).
type Fields map[string]bool

type Order struct {
	Field     string `json:"field,omitempty"`
	Direction string `json:"direction,omitempty"`
}

type Query struct {
	Where  Where   `json:"where,omitempty"`
	Fields Fields  `json:"fields,omitempty"`
	Order  []Order `json:"order,omitempty"`
	Limit  uint    `json:"limit,omitempty"`
	Skip   uint    `json:"skip,omitempty"`
}

func (q *Query) ToJSON() (string, error) {
	data, err := sonic.MarshalIndent(q, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
