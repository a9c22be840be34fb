package docstore

import (
	"github.com/go-playground/validator/v10"
)

// CollectionOptions configures a typed collection handle.
type CollectionOptions struct {
	// Created/Modified make the collection stamp the corresponding fields on
	// insert and update. The fields are managed: values supplied by callers
	// are discarded.
	Created  bool
	Modified bool

	// SoftDelete turns deletes into `deleted` stamps and makes every query
	// exclude stamped documents.
	SoftDelete bool

	// IDPolicy is the identifier-coercion policy applied by *ByID
	// operations. Defaults to PolicyLenient.
	IDPolicy CoercePolicy

	// Validator, when set, validates documents (struct tags) before
	// Insert/InsertMany/Create.
	Validator *validator.Validate

	// Indexes are created by EnsureIndexes, in addition to any the document
	// type declares through the Indexable interface.
	Indexes []IndexDefinition
}

type CollectionOption func(*CollectionOptions)

func WithCreated() CollectionOption {
	return func(o *CollectionOptions) { o.Created = true }
}

func WithModified() CollectionOption {
	return func(o *CollectionOptions) { o.Modified = true }
}

func WithTimestamps() CollectionOption {
	return func(o *CollectionOptions) {
		o.Created = true
		o.Modified = true
	}
}

func WithSoftDelete() CollectionOption {
	return func(o *CollectionOptions) { o.SoftDelete = true }
}

// WithStrictIDs makes *ByID operations fail with InvalidObjectIDError on
// malformed identifier strings instead of treating them as "no match".
func WithStrictIDs() CollectionOption {
	return func(o *CollectionOptions) { o.IDPolicy = PolicyStrict }
}

func WithValidator(v *validator.Validate) CollectionOption {
	return func(o *CollectionOptions) { o.Validator = v }
}

func WithIndexes(indexes ...IndexDefinition) CollectionOption {
	return func(o *CollectionOptions) { o.Indexes = append(o.Indexes, indexes...) }
}

// UpdateDocument mirrors the driver's update command shape for callers that
// prefer a typed update over a bson.M.
type UpdateDocument struct {
	CurrentDate any `bson:"$currentDate,omitempty"`
	Inc         any `bson:"$inc,omitempty"`
	Min         any `bson:"$min,omitempty"`
	Max         any `bson:"$max,omitempty"`
	Mul         any `bson:"$mul,omitempty"`
	Rename      any `bson:"$rename,omitempty"`
	Set         any `bson:"$set,omitempty"`
	SetOnInsert any `bson:"$setOnInsert,omitempty"`
	Unset       any `bson:"$unset,omitempty"`
	AddToSet    any `bson:"$addToSet,omitempty"`
	Pop         any `bson:"$pop,omitempty"`
	Pull        any `bson:"$pull,omitempty"`
	PullAll     any `bson:"$pullAll,omitempty"`
	Push        any `bson:"$push,omitempty"`
}
