package docstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// fakeStore is an in-memory Driver with just enough filter, sort and update
// semantics to exercise the collection layer without a server.
type fakeStore struct {
	docs []bson.M

	// failWith makes every call fail with this error.
	failWith error

	lastFilter bson.M
	lastUpdate bson.M
	lastFind   *options.FindOptions
	inserts    []bson.M
}

func applyOpts[T any](opts []options.Lister[T]) *T {
	args := new(T)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		for _, fn := range opt.List() {
			if fn == nil {
				continue
			}
			_ = fn(args)
		}
	}
	return args
}

func asBsonM(filter any) bson.M {
	if filter == nil {
		return bson.M{}
	}
	if m, ok := filter.(bson.M); ok {
		return m
	}
	return bson.M{}
}

func (f *fakeStore) matching(filter bson.M) []bson.M {
	var matched []bson.M
	for _, doc := range f.docs {
		if matchDoc(doc, filter) {
			matched = append(matched, doc)
		}
	}
	return matched
}

func (f *fakeStore) CountDocuments(_ context.Context, filter any, _ ...options.Lister[options.CountOptions]) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.lastFilter = asBsonM(filter)
	return int64(len(f.matching(f.lastFilter))), nil
}

func (f *fakeStore) Find(_ context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastFilter = asBsonM(filter)
	f.lastFind = applyOpts(opts)

	matched := f.matching(f.lastFilter)
	if f.lastFind.Sort != nil {
		sortDocs(matched, f.lastFind.Sort)
	}
	if f.lastFind.Skip != nil {
		skip := int(*f.lastFind.Skip)
		if skip > len(matched) {
			skip = len(matched)
		}
		matched = matched[skip:]
	}
	if f.lastFind.Limit != nil && int(*f.lastFind.Limit) < len(matched) {
		matched = matched[:*f.lastFind.Limit]
	}

	documents := make([]any, len(matched))
	for i, doc := range matched {
		documents[i] = doc
	}
	return mongo.NewCursorFromDocuments(documents, nil, nil)
}

func (f *fakeStore) FindOne(_ context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult {
	if f.failWith != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.failWith, nil)
	}
	f.lastFilter = asBsonM(filter)
	args := applyOpts(opts)

	matched := f.matching(f.lastFilter)
	if args.Sort != nil {
		sortDocs(matched, args.Sort)
	}
	if len(matched) == 0 {
		return &mongo.SingleResult{}
	}
	return mongo.NewSingleResultFromDocument(matched[0], nil, nil)
}

func (f *fakeStore) InsertOne(_ context.Context, document any, _ ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	doc, err := toBsonMap(document)
	if err != nil {
		return nil, err
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = bson.NewObjectID()
	}
	f.docs = append(f.docs, doc)
	f.inserts = append(f.inserts, doc)
	return &mongo.InsertOneResult{InsertedID: doc["_id"]}, nil
}

func (f *fakeStore) InsertMany(ctx context.Context, documents any, _ ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	docs, ok := documents.([]any)
	if !ok {
		return nil, mongo.ErrNilDocument
	}
	result := &mongo.InsertManyResult{}
	for _, document := range docs {
		one, err := f.InsertOne(ctx, document)
		if err != nil {
			return nil, err
		}
		result.InsertedIDs = append(result.InsertedIDs, one.InsertedID)
	}
	return result, nil
}

func (f *fakeStore) UpdateOne(_ context.Context, filter any, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastFilter = asBsonM(filter)
	f.lastUpdate = asBsonM(update)

	matched := f.matching(f.lastFilter)
	if len(matched) == 0 {
		return &mongo.UpdateResult{}, nil
	}
	applyUpdate(matched[0], f.lastUpdate)
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (f *fakeStore) UpdateMany(_ context.Context, filter any, update any, _ ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastFilter = asBsonM(filter)
	f.lastUpdate = asBsonM(update)

	matched := f.matching(f.lastFilter)
	for _, doc := range matched {
		applyUpdate(doc, f.lastUpdate)
	}
	count := int64(len(matched))
	return &mongo.UpdateResult{MatchedCount: count, ModifiedCount: count}, nil
}

func (f *fakeStore) DeleteOne(_ context.Context, filter any, _ ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastFilter = asBsonM(filter)
	for i, doc := range f.docs {
		if matchDoc(doc, f.lastFilter) {
			f.docs = append(f.docs[:i], f.docs[i+1:]...)
			return &mongo.DeleteResult{DeletedCount: 1}, nil
		}
	}
	return &mongo.DeleteResult{}, nil
}

func (f *fakeStore) DeleteMany(_ context.Context, filter any, _ ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastFilter = asBsonM(filter)
	var kept []bson.M
	var deleted int64
	for _, doc := range f.docs {
		if matchDoc(doc, f.lastFilter) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	f.docs = kept
	return &mongo.DeleteResult{DeletedCount: deleted}, nil
}

func (f *fakeStore) FindOneAndUpdate(_ context.Context, filter any, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult {
	if f.failWith != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.failWith, nil)
	}
	f.lastFilter = asBsonM(filter)
	f.lastUpdate = asBsonM(update)
	args := applyOpts(opts)

	matched := f.matching(f.lastFilter)
	if len(matched) == 0 {
		if args.Upsert == nil || !*args.Upsert {
			return &mongo.SingleResult{}
		}
		doc := upsertDoc(f.lastFilter, f.lastUpdate)
		f.docs = append(f.docs, doc)
		f.inserts = append(f.inserts, doc)
		return mongo.NewSingleResultFromDocument(doc, nil, nil)
	}

	doc := matched[0]
	before := bson.M{}
	for k, v := range doc {
		before[k] = v
	}
	applyUpdate(doc, f.lastUpdate)

	if args.ReturnDocument != nil && *args.ReturnDocument == options.After {
		return mongo.NewSingleResultFromDocument(doc, nil, nil)
	}
	return mongo.NewSingleResultFromDocument(before, nil, nil)
}

func (f *fakeStore) FindOneAndDelete(_ context.Context, filter any, _ ...options.Lister[options.FindOneAndDeleteOptions]) *mongo.SingleResult {
	if f.failWith != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.failWith, nil)
	}
	f.lastFilter = asBsonM(filter)
	for i, doc := range f.docs {
		if matchDoc(doc, f.lastFilter) {
			f.docs = append(f.docs[:i], f.docs[i+1:]...)
			return mongo.NewSingleResultFromDocument(doc, nil, nil)
		}
	}
	return &mongo.SingleResult{}
}

func (f *fakeStore) Aggregate(_ context.Context, pipeline any, _ ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}

	matched := f.docs
	if stages, ok := pipeline.([]bson.M); ok {
		for _, stage := range stages {
			if match, ok := stage["$match"].(bson.M); ok {
				var next []bson.M
				for _, doc := range matched {
					if matchDoc(doc, match) {
						next = append(next, doc)
					}
				}
				matched = next
			}
		}
	}

	documents := make([]any, len(matched))
	for i, doc := range matched {
		documents[i] = doc
	}
	return mongo.NewCursorFromDocuments(documents, nil, nil)
}

func (f *fakeStore) Indexes() mongo.IndexView {
	return mongo.IndexView{}
}

func (f *fakeStore) Drop(_ context.Context, _ ...options.Lister[options.DropCollectionOptions]) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.docs = nil
	return nil
}

// matchDoc evaluates the filter subset the collection layer produces:
// $and/$or, $text substring search, field operators and direct equality.
func matchDoc(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$and":
			arr, ok := cond.(bson.A)
			if !ok {
				return false
			}
			for _, sub := range arr {
				subFilter, ok := sub.(bson.M)
				if !ok || !matchDoc(doc, subFilter) {
					return false
				}
			}
		case "$or":
			arr, ok := cond.(bson.A)
			if !ok {
				return false
			}
			anyMatch := false
			for _, sub := range arr {
				if subFilter, ok := sub.(bson.M); ok && matchDoc(doc, subFilter) {
					anyMatch = true
					break
				}
			}
			if !anyMatch {
				return false
			}
		case "$text":
			textCond, ok := cond.(bson.M)
			if !ok {
				return false
			}
			term, _ := textCond["$search"].(string)
			if !textMatch(doc, term) {
				return false
			}
		default:
			if !matchField(doc, key, cond) {
				return false
			}
		}
	}
	return true
}

func textMatch(doc bson.M, term string) bool {
	term = strings.ToLower(term)
	for _, value := range doc {
		if s, ok := value.(string); ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func matchField(doc bson.M, field string, cond any) bool {
	value, present := doc[field]

	operators, isOps := cond.(bson.M)
	if !isOps {
		return present && equalValues(value, cond)
	}

	for op, operand := range operators {
		switch op {
		case "$type":
			// Only the null check (type 10) is ever issued.
			if operand != bsonTypeNull && operand != int32(bsonTypeNull) {
				return false
			}
			if !present || value != nil {
				return false
			}
		case "$exists":
			want, _ := operand.(bool)
			if present != want {
				return false
			}
		case "$eq":
			if !present || !equalValues(value, operand) {
				return false
			}
		case "$ne":
			if present && equalValues(value, operand) {
				return false
			}
		case "$gt":
			if !present || compareValues(value, operand) <= 0 {
				return false
			}
		case "$gte":
			if !present || compareValues(value, operand) < 0 {
				return false
			}
		case "$lt":
			if !present || compareValues(value, operand) >= 0 {
				return false
			}
		case "$lte":
			if !present || compareValues(value, operand) > 0 {
				return false
			}
		case "$in":
			if !present || !inOperand(value, operand) {
				return false
			}
		case "$nin":
			if present && inOperand(value, operand) {
				return false
			}
		case "$regex":
			pattern, _ := operand.(string)
			s, ok := value.(string)
			if !ok || !strings.Contains(s, strings.Trim(pattern, "^$")) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func inOperand(value any, operand any) bool {
	switch arr := operand.(type) {
	case bson.A:
		for _, el := range arr {
			if equalValues(value, el) {
				return true
			}
		}
	case []any:
		for _, el := range arr {
			if equalValues(value, el) {
				return true
			}
		}
	}
	return false
}

func equalValues(a any, b any) bool {
	if aID, ok := a.(bson.ObjectID); ok {
		bID, ok := b.(bson.ObjectID)
		return ok && aID == bID
	}
	if aNum, ok := asFloat(a); ok {
		bNum, bOK := asFloat(b)
		return bOK && aNum == bNum
	}
	return a == b
}

func compareValues(a any, b any) int {
	if aNum, ok := asFloat(a); ok {
		bNum, _ := asFloat(b)
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}
	if aTime, ok := a.(time.Time); ok {
		bTime, _ := b.(time.Time)
		return aTime.Compare(bTime)
	}
	if aID, ok := a.(bson.ObjectID); ok {
		bID, _ := b.(bson.ObjectID)
		return strings.Compare(aID.Hex(), bID.Hex())
	}
	aStr, _ := a.(string)
	bStr, _ := b.(string)
	return strings.Compare(aStr, bStr)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortDocs(docs []bson.M, sortSpec any) {
	spec, ok := sortSpec.(bson.D)
	if !ok {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range spec {
			cmp := compareValues(docs[i][field.Key], docs[j][field.Key])
			if cmp == 0 {
				continue
			}
			direction, _ := field.Value.(int)
			if direction < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func applyUpdate(doc bson.M, update bson.M) {
	if set, ok := update[opSet].(bson.M); ok {
		for k, v := range set {
			doc[k] = v
		}
	}
	if currentDate, ok := update[opCurrentDate].(bson.M); ok {
		for k, enabled := range currentDate {
			if enabled == true {
				doc[k] = time.Now()
			}
		}
	}
}

func upsertDoc(filter bson.M, update bson.M) bson.M {
	doc := bson.M{}
	for k, v := range filter {
		if !strings.HasPrefix(k, commandPrefix) {
			doc[k] = v
		}
	}
	if setOnInsert, ok := update[opSetOnInsert].(bson.M); ok {
		for k, v := range setOnInsert {
			doc[k] = v
		}
	}
	applyUpdate(doc, update)
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = bson.NewObjectID()
	}
	return doc
}
