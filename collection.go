package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xompass/vsaas-docstore/query"
)

// Collection is a typed handle over one named collection. All data
// operations delegate to the Driver; the handle itself is stateless apart
// from its configuration.
type Collection[T any] struct {
	name   string
	driver Driver
	opts   CollectionOptions
	fields query.FieldMap
}

// NewCollection creates a typed handle for the named collection and
// registers it with the manager.
func NewCollection[T any](m *Manager, name string, opts ...CollectionOption) (*Collection[T], error) {
	if m == nil {
		return nil, newError(CodeInvalidArgument, "manager cannot be nil")
	}
	if name == "" {
		return nil, newError(CodeInvalidArgument, "collection name is required")
	}

	var collOpts CollectionOptions
	for _, opt := range opts {
		opt(&collOpts)
	}

	c := &Collection[T]{
		name:   name,
		driver: m.RawCollection(name),
		opts:   collOpts,
		fields: fieldMapFor[T](),
	}

	if err := m.register(c); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Collection[T]) Name() string {
	return c.name
}

// Driver returns the raw collection capability, for operations this layer
// does not cover.
func (c *Collection[T]) Driver() Driver {
	return c.driver
}

// Find retrieves all documents matching the filter. A nil filter matches
// everything. No documents is an empty slice, not an error.
func (c *Collection[T]) Find(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOptions]) ([]T, error) {
	cursor, err := c.driver.Find(ctx, c.fixQuery(orEmpty(filter)), opts...)
	if err != nil {
		return nil, mapStoreError(err)
	}

	var receiver []T
	if err = cursor.All(ctx, &receiver); err != nil {
		return nil, mapStoreError(err)
	}

	if receiver == nil {
		return []T{}, nil
	}
	return receiver, nil
}

// FindOne retrieves a single document matching the filter, or nil when no
// document matches.
func (c *Collection[T]) FindOne(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*T, error) {
	result := c.driver.FindOne(ctx, c.fixQuery(orEmpty(filter)), opts...)

	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapStoreError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, mapStoreError(err)
	}

	return receiver, nil
}

// FindByID retrieves a document by identifier. The id goes through the
// collection's coercion policy: under the lenient default a malformed id is
// "no match" (nil, nil); under WithStrictIDs it is an InvalidObjectIDError.
func (c *Collection[T]) FindByID(ctx context.Context, id any) (*T, error) {
	oid, ok, err := CoerceObjectID(id, c.opts.IDPolicy)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return c.FindOne(ctx, bson.M{fieldID: oid})
}

// FindLastOne retrieves the most recently inserted document matching the
// filter, by descending _id.
func (c *Collection[T]) FindLastOne(ctx context.Context, filter bson.M) (*T, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: fieldID, Value: -1}})
	return c.FindOne(ctx, filter, opts)
}

// FindByQuery runs an external query document: the where tree is converted
// against the document type's field map, sort/skip/limit/projection are
// applied from the query.
func (c *Collection[T]) FindByQuery(ctx context.Context, q *query.Query) ([]T, error) {
	mq, err := query.Build(q, c.fields)
	if err != nil {
		return nil, newError(CodeInvalidArgument, "invalid query", err)
	}

	findOpts := options.Find()
	if len(mq.Sort) > 0 {
		findOpts.SetSort(mq.Sort)
	}
	if mq.Limit != nil {
		findOpts.SetLimit(int64(*mq.Limit))
	}
	if mq.Skip != nil {
		findOpts.SetSkip(int64(*mq.Skip))
	}
	if mq.Projection != nil {
		findOpts.SetProjection(mq.Projection)
	}

	return c.Find(ctx, mq.Where, findOpts)
}

// CountByQuery counts the documents matching an external query document,
// ignoring its skip/limit.
func (c *Collection[T]) CountByQuery(ctx context.Context, q *query.Query) (int64, error) {
	mq, err := query.Build(q, c.fields)
	if err != nil {
		return 0, newError(CodeInvalidArgument, "invalid query", err)
	}
	return c.Count(ctx, mq.Where)
}

// FindAndMap retrieves the documents matching the filter and maps each one
// through mapFn.
func FindAndMap[T any, U any](ctx context.Context, c *Collection[T], filter bson.M, mapFn func(T) U, opts ...options.Lister[options.FindOptions]) ([]U, error) {
	docs, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	mapped := make([]U, 0, len(docs))
	for _, doc := range docs {
		mapped = append(mapped, mapFn(doc))
	}
	return mapped, nil
}

// Insert inserts a document and returns its identifier. The document runs
// its BeforeCreate hook, the configured validator, and insert normalization
// (managed stamps) first.
func (c *Collection[T]) Insert(ctx context.Context, doc T) (any, error) {
	if hook, ok := any(&doc).(BeforeCreateHook); ok {
		if err := hook.BeforeCreate(); err != nil {
			return nil, err
		}
	}

	if c.opts.Validator != nil {
		if err := c.opts.Validator.StructCtx(ctx, doc); err != nil {
			return nil, newError(CodeValidationFailed, "document validation failed", err)
		}
	}

	document, err := c.prepareInsertDocument(doc)
	if err != nil {
		return nil, err
	}

	insertedResult, err := c.driver.InsertOne(ctx, document)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return insertedResult.InsertedID, nil
}

// InsertMany inserts documents in one round-trip and returns their
// identifiers.
func (c *Collection[T]) InsertMany(ctx context.Context, docs []T) ([]any, error) {
	if len(docs) == 0 {
		return nil, newError(CodeInvalidArgument, "documents cannot be empty")
	}

	documents := make([]any, 0, len(docs))
	for _, doc := range docs {
		if hook, ok := any(&doc).(BeforeCreateHook); ok {
			if err := hook.BeforeCreate(); err != nil {
				return nil, err
			}
		}

		if c.opts.Validator != nil {
			if err := c.opts.Validator.StructCtx(ctx, doc); err != nil {
				return nil, newError(CodeValidationFailed, "document validation failed", err)
			}
		}

		document, err := c.prepareInsertDocument(doc)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}

	result, err := c.driver.InsertMany(ctx, documents)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return result.InsertedIDs, nil
}

// Create inserts a document and reads it back.
func (c *Collection[T]) Create(ctx context.Context, doc T) (*T, error) {
	insertedID, err := c.Insert(ctx, doc)
	if err != nil {
		return nil, err
	}

	return c.FindByID(ctx, insertedID)
}

// Update updates a single document matching the filter.
func (c *Collection[T]) Update(ctx context.Context, filter bson.M, update any) error {
	if update == nil {
		return newError(CodeInvalidArgument, "update cannot be nil")
	}

	fixedUpdate, err := c.prepareUpdateDocument(update, updateFlags{}, updateFlags{})
	if err != nil {
		return err
	}

	_, err = c.driver.UpdateOne(ctx, c.fixQuery(orEmpty(filter)), fixedUpdate)
	if err != nil {
		return mapStoreError(err)
	}

	return nil
}

// UpdateMany updates all documents matching the filter and returns the
// modified count.
func (c *Collection[T]) UpdateMany(ctx context.Context, filter bson.M, update any) (int64, error) {
	if update == nil {
		return 0, newError(CodeInvalidArgument, "update cannot be nil")
	}

	fixedUpdate, err := c.prepareUpdateDocument(update, updateFlags{}, updateFlags{})
	if err != nil {
		return 0, err
	}

	result, err := c.driver.UpdateMany(ctx, c.fixQuery(orEmpty(filter)), fixedUpdate)
	if err != nil {
		return 0, mapStoreError(err)
	}

	return result.ModifiedCount, nil
}

// FindOneAndUpdate updates a single document matching the filter and
// returns it as stored after the update, or nil when nothing matched.
func (c *Collection[T]) FindOneAndUpdate(ctx context.Context, filter bson.M, update any) (*T, error) {
	if update == nil {
		return nil, newError(CodeInvalidArgument, "update cannot be nil")
	}

	fixedUpdate, err := c.prepareUpdateDocument(update, updateFlags{}, updateFlags{})
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	result := c.driver.FindOneAndUpdate(ctx, c.fixQuery(orEmpty(filter)), fixedUpdate, opts)

	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapStoreError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, mapStoreError(err)
	}

	return receiver, nil
}

// FindOneOrCreate finds a document matching the filter or inserts doc when
// nothing matches, returning the stored document either way.
func (c *Collection[T]) FindOneOrCreate(ctx context.Context, filter bson.M, doc T) (*T, error) {
	docMap, err := toBsonMap(doc)
	if err != nil {
		return nil, err
	}

	update, err := c.prepareUpdateDocument(bson.M{opSetOnInsert: docMap}, updateFlags{}, updateFlags{Insert: true})
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	result := c.driver.FindOneAndUpdate(ctx, c.fixQuery(orEmpty(filter)), update, opts)
	if err := result.Err(); err != nil {
		return nil, mapStoreError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, mapStoreError(err)
	}

	return receiver, nil
}

// FindByIDAndSet sets fields on the document with the given identifier and
// returns the updated document. Plain-field sets are wrapped in $set by
// update normalization. The id follows the collection's coercion policy.
func (c *Collection[T]) FindByIDAndSet(ctx context.Context, id any, set any) (*T, error) {
	oid, ok, err := CoerceObjectID(id, c.opts.IDPolicy)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return c.FindOneAndUpdate(ctx, bson.M{fieldID: oid}, set)
}

// Remove deletes all documents matching the filter and returns the count.
// On a soft-delete collection documents are stamped instead of removed.
func (c *Collection[T]) Remove(ctx context.Context, filter bson.M) (int64, error) {
	query := c.fixQuery(orEmpty(filter))

	if c.opts.SoftDelete {
		result, err := c.driver.UpdateMany(ctx, query, bson.M{opCurrentDate: bson.M{fieldDeleted: true}})
		if err != nil {
			return 0, mapStoreError(err)
		}
		return result.ModifiedCount, nil
	}

	result, err := c.driver.DeleteMany(ctx, query)
	if err != nil {
		return 0, mapStoreError(err)
	}

	return result.DeletedCount, nil
}

// RemoveOne deletes a single document matching the filter and reports
// whether one was removed. On a soft-delete collection the document is
// stamped instead of removed.
func (c *Collection[T]) RemoveOne(ctx context.Context, filter bson.M) (bool, error) {
	query := c.fixQuery(orEmpty(filter))

	if c.opts.SoftDelete {
		result, err := c.driver.UpdateOne(ctx, query, bson.M{opCurrentDate: bson.M{fieldDeleted: true}})
		if err != nil {
			return false, mapStoreError(err)
		}
		return result.ModifiedCount > 0, nil
	}

	result, err := c.driver.DeleteOne(ctx, query)
	if err != nil {
		return false, mapStoreError(err)
	}

	return result.DeletedCount > 0, nil
}

// FindOneAndDelete deletes a single document matching the filter and
// returns it, or nil when nothing matched.
func (c *Collection[T]) FindOneAndDelete(ctx context.Context, filter bson.M) (*T, error) {
	query := c.fixQuery(orEmpty(filter))

	var result *mongo.SingleResult
	if c.opts.SoftDelete {
		result = c.driver.FindOneAndUpdate(ctx, query, bson.M{opCurrentDate: bson.M{fieldDeleted: true}})
	} else {
		result = c.driver.FindOneAndDelete(ctx, query)
	}

	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapStoreError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, mapStoreError(err)
	}

	return receiver, nil
}

// FindByIDAndDelete deletes the document with the given identifier and
// returns it, or nil when it does not exist. The id follows the
// collection's coercion policy.
func (c *Collection[T]) FindByIDAndDelete(ctx context.Context, id any) (*T, error) {
	oid, ok, err := CoerceObjectID(id, c.opts.IDPolicy)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return c.FindOneAndDelete(ctx, bson.M{fieldID: oid})
}

// Count returns the number of documents matching the filter.
func (c *Collection[T]) Count(ctx context.Context, filter bson.M) (int64, error) {
	count, err := c.driver.CountDocuments(ctx, c.fixQuery(orEmpty(filter)))
	if err != nil {
		return 0, mapStoreError(err)
	}
	return count, nil
}

// Exists reports whether any document matches the filter.
func (c *Collection[T]) Exists(ctx context.Context, filter bson.M) (bool, error) {
	opts := options.FindOne().SetProjection(bson.M{fieldID: true})
	result := c.driver.FindOne(ctx, c.fixQuery(orEmpty(filter)), opts)

	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, mapStoreError(err)
	}

	return true, nil
}

// ExistsByID reports whether a document with the given identifier exists.
// The id follows the collection's coercion policy.
func (c *Collection[T]) ExistsByID(ctx context.Context, id any) (bool, error) {
	oid, ok, err := CoerceObjectID(id, c.opts.IDPolicy)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	return c.Exists(ctx, bson.M{fieldID: oid})
}

// Aggregate runs a pipeline and decodes all results into the results
// pointer. The pipeline is issued as given; soft-delete filtering is the
// caller's responsibility here.
func (c *Collection[T]) Aggregate(ctx context.Context, pipeline any, results any) error {
	cursor, err := c.driver.Aggregate(ctx, pipeline)
	if err != nil {
		return mapStoreError(err)
	}

	if err := cursor.All(ctx, results); err != nil {
		return mapStoreError(err)
	}

	return nil
}

// CreateIndex creates a single index and returns its name.
func (c *Collection[T]) CreateIndex(ctx context.Context, def IndexDefinition) (string, error) {
	name, err := c.driver.Indexes().CreateOne(ctx, def.toIndexModel())
	if err != nil {
		return "", mapStoreError(err)
	}
	return name, nil
}

// CreateTextIndex creates the full-text index FindSmartPage search terms
// resolve against.
func (c *Collection[T]) CreateTextIndex(ctx context.Context, name string, fields ...string) (string, error) {
	return c.CreateIndex(ctx, NewTextIndex(name, fields...))
}

// EnsureIndexes creates the indexes configured on the collection plus any
// declared by the document type through the Indexable interface.
func (c *Collection[T]) EnsureIndexes(ctx context.Context) error {
	defs := append([]IndexDefinition{}, c.opts.Indexes...)

	var doc T
	if indexable, ok := any(&doc).(Indexable); ok {
		defs = append(defs, indexable.Indexes()...)
	} else if indexable, ok := any(doc).(Indexable); ok {
		defs = append(defs, indexable.Indexes()...)
	}

	if len(defs) == 0 {
		return nil
	}

	models := make([]mongo.IndexModel, 0, len(defs))
	for _, def := range defs {
		models = append(models, def.toIndexModel())
	}

	if _, err := c.driver.Indexes().CreateMany(ctx, models); err != nil {
		return mapStoreError(err)
	}

	return nil
}

// Drop drops the collection.
func (c *Collection[T]) Drop(ctx context.Context) error {
	if err := c.driver.Drop(ctx); err != nil {
		return mapStoreError(err)
	}
	return nil
}

func orEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
