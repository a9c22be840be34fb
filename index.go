package docstore

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// IndexField is one field of an index key.
type IndexField struct {
	Name  string
	Order int // 1 ascending, -1 descending; ignored when Text is set
	Text  bool
}

// IndexDefinition describes a collection index.
type IndexDefinition struct {
	Name   string
	Fields []IndexField

	Unique             bool
	Sparse             bool
	Hidden             bool
	ExpireAfterSeconds *int32
	PartialFilter      map[string]any
	Weights            map[string]int32 // text search weights
	DefaultLanguage    string           // default language for text indexes
}

// NewSimpleIndex creates an ascending single-field index.
func NewSimpleIndex(fieldName string, unique bool) IndexDefinition {
	return IndexDefinition{
		Name:   fieldName + "_1",
		Fields: []IndexField{{Name: fieldName, Order: 1}},
		Unique: unique,
	}
}

// NewCompoundIndex creates an index over multiple fields.
func NewCompoundIndex(name string, fields []IndexField, unique bool) IndexDefinition {
	return IndexDefinition{
		Name:   name,
		Fields: fields,
		Unique: unique,
	}
}

// NewTextIndex creates a full-text search index. A collection needs one for
// FindSmartPage search terms to resolve.
func NewTextIndex(name string, fields ...string) IndexDefinition {
	indexFields := make([]IndexField, len(fields))
	for i, field := range fields {
		indexFields[i] = IndexField{Name: field, Text: true}
	}

	return IndexDefinition{
		Name:   name,
		Fields: indexFields,
	}
}

// NewTTLIndex creates a TTL index on a date field.
func NewTTLIndex(fieldName string, expireAfter time.Duration) IndexDefinition {
	seconds := int32(expireAfter.Seconds())
	return IndexDefinition{
		Name:               fieldName + "_ttl",
		Fields:             []IndexField{{Name: fieldName, Order: 1}},
		ExpireAfterSeconds: &seconds,
	}
}

func (idx IndexDefinition) WithSparse(sparse bool) IndexDefinition {
	idx.Sparse = sparse
	return idx
}

func (idx IndexDefinition) WithHidden(hidden bool) IndexDefinition {
	idx.Hidden = hidden
	return idx
}

func (idx IndexDefinition) WithPartialFilter(filter map[string]any) IndexDefinition {
	idx.PartialFilter = filter
	return idx
}

func (idx IndexDefinition) WithWeights(weights map[string]int32) IndexDefinition {
	idx.Weights = weights
	return idx
}

func (idx IndexDefinition) WithDefaultLanguage(language string) IndexDefinition {
	idx.DefaultLanguage = language
	return idx
}

func (idx IndexDefinition) WithTTL(expireAfter time.Duration) IndexDefinition {
	seconds := int32(expireAfter.Seconds())
	idx.ExpireAfterSeconds = &seconds
	return idx
}

// toIndexModel converts a definition to the driver's index model.
func (idx IndexDefinition) toIndexModel() mongo.IndexModel {
	keys := bson.D{}
	for _, field := range idx.Fields {
		if field.Text {
			keys = append(keys, bson.E{Key: field.Name, Value: "text"})
		} else {
			keys = append(keys, bson.E{Key: field.Name, Value: field.Order})
		}
	}

	opts := options.Index()
	if idx.Name != "" {
		opts.SetName(idx.Name)
	}
	if idx.Unique {
		opts.SetUnique(true)
	}
	if idx.Sparse {
		opts.SetSparse(true)
	}
	if idx.Hidden {
		opts.SetHidden(true)
	}
	if idx.ExpireAfterSeconds != nil {
		opts.SetExpireAfterSeconds(*idx.ExpireAfterSeconds)
	}
	if idx.PartialFilter != nil {
		opts.SetPartialFilterExpression(idx.PartialFilter)
	}
	if idx.Weights != nil {
		opts.SetWeights(idx.Weights)
	}
	if idx.DefaultLanguage != "" {
		opts.SetDefaultLanguage(idx.DefaultLanguage)
	}

	return mongo.IndexModel{
		Keys:    keys,
		Options: opts,
	}
}
