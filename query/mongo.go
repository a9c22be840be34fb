package query

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/simplereach/timeutils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var mongoOperators = map[string]string{
	"eq":     "$eq",
	"neq":    "$ne",
	"gt":     "$gt",
	"gte":    "$gte",
	"lt":     "$lt",
	"lte":    "$lte",
	"in":     "$in",
	"nin":    "$nin",
	"and":    "$and",
	"or":     "$or",
	"exists": "$exists",
}

// FieldKind is the coercion class of a document field.
type FieldKind int

const (
	KindPlain FieldKind = iota
	KindObjectID
	KindDate
)

// Field describes one queryable document field.
type Field struct {
	// Column is the BSON name the field is stored under.
	Column string
	Kind   FieldKind
	// Nullable fields accept null operands for identifier and date
	// comparisons.
	Nullable bool
	// Banned fields are stripped from projections.
	Banned bool
	// Always fields are forced into every explicit projection.
	Always bool
}

// FieldMap maps externally visible (JSON) field names, including dotted
// paths, to field descriptions.
type FieldMap map[string]Field

// Mongo is a query converted to driver-native shapes.
type Mongo struct {
	Where      bson.M
	Sort       bson.D
	Limit      *uint
	Skip       *uint
	Projection map[string]bool
}

// Build converts a parsed query to driver shapes. Unknown fields are
// dropped, identifier and date operands are coerced per the field map, and
// raw driver operators are refused.
func Build(q *Query, fields FieldMap) (*Mongo, error) {
	if q == nil {
		return &Mongo{Where: bson.M{}}, nil
	}

	result := &Mongo{}

	where, err := buildWhere(q.Where, "", fields)
	if err != nil {
		return nil, err
	}
	if len(where) == 0 && len(q.Where) != 0 {
		return nil, errors.New("invalid where parameter")
	}
	result.Where = where

	result.Sort = buildSort(q.Order)
	if len(result.Sort) == 0 && len(q.Order) != 0 {
		return nil, errors.New("invalid order parameter")
	}

	if q.Limit != 0 {
		limit := q.Limit
		result.Limit = &limit
	}
	if q.Skip != 0 {
		skip := q.Skip
		result.Skip = &skip
	}

	result.Projection = buildProjection(q.Fields, fields)

	return result, nil
}

func buildSort(order []Order) bson.D {
	sort := bson.D{}
	for _, o := range order {
		if o.Direction == "DESC" {
			sort = append(sort, bson.E{Key: o.Field, Value: -1})
		} else {
			sort = append(sort, bson.E{Key: o.Field, Value: 1})
		}
	}
	return sort
}

func buildProjection(requested Fields, fields FieldMap) map[string]bool {
	if len(requested) > 0 {
		projection := map[string]bool{}
		for key, val := range requested {
			if _, exists := lookupField(key, fields); exists {
				projection[key] = val
			}
		}
		for name, field := range fields {
			if field.Always {
				projection[name] = true
			}
			if field.Banned {
				delete(projection, name)
			}
		}
		if len(projection) == 0 {
			return map[string]bool{"_id": true}
		}
		return projection
	}

	projection := map[string]bool{}
	for name, field := range fields {
		if field.Banned {
			projection[name] = false
		}
	}
	if len(projection) == 0 {
		return nil
	}
	return projection
}

func buildWhere(where Where, parentField string, fields FieldMap) (bson.M, error) {
	if where == nil {
		return bson.M{}, nil
	}

	if _, ok := where["$where"]; ok {
		return nil, errors.New("invalid where parameter: $where is not allowed")
	}

	result := bson.M{}

	like, hasLike := where["like"]
	nlike, hasNLike := where["nlike"]
	opts := where["options"]
	exists, hasExists := where["exists"]

	switch {
	case hasExists:
		if _, ok := exists.(bool); !ok {
			return nil, errors.New("invalid where parameter: exists must be boolean")
		}
		result["$exists"] = exists
	case hasLike:
		result["$regex"] = like
		if opts != nil {
			result["$options"] = opts
		}
	case hasNLike:
		regex := bson.M{"$regex": nlike}
		if opts != nil {
			regex["$options"] = opts
		}
		result["$not"] = regex
	default:
		for key, val := range where {
			if len(key) > 0 && key[0] == '$' {
				continue
			}

			mongoOp, isOperator := mongoOperators[key]
			var operatorName string
			var fieldName string
			var field Field
			var known bool

			if isOperator {
				operatorName = mongoOp
				field, known = lookupField(parentField, fields)
				if known {
					fieldName = field.Column
				}
			} else {
				field, known = lookupField(key, fields)
				if !known {
					continue
				}
				fieldName = field.Column
				operatorName = fieldName
			}

			switch v := val.(type) {
			case AndOrCondition:
				arr := bson.A{}
				for _, el := range v {
					sub, err := buildWhere(el, parentField, fields)
					if err != nil {
						return bson.M{}, err
					}
					if len(sub) > 0 {
						arr = append(arr, sub)
					}
				}
				if len(arr) == 0 {
					return bson.M{}, errors.New("invalid and/or condition")
				}
				result[operatorName] = arr
			case Where:
				sub, err := buildWhere(v, key, fields)
				if err != nil {
					return bson.M{}, err
				}
				if len(sub) > 0 {
					result[fieldName] = sub
				}
			default:
				operand, err := coerceOperand(key, val, field)
				if err == nil {
					result[operatorName] = operand
				}
			}
		}
	}

	return result, nil
}

func coerceOperand(op string, val any, field Field) (any, error) {
	switch field.Kind {
	case KindObjectID:
		if op == "in" || op == "nin" {
			return objectIDArray(val)
		}
		if field.Nullable {
			return objectIDOrNil(val)
		}
		return objectID(val)
	case KindDate:
		if op == "in" || op == "nin" {
			return dateArray(val)
		}
		if field.Nullable {
			return dateOrNil(val)
		}
		return date(val)
	default:
		return val, nil
	}
}

func objectIDArray(val any) ([]bson.ObjectID, error) {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice {
		return nil, errors.New("invalid ObjectID collection")
	}

	var arr []bson.ObjectID
	for i := 0; i < rv.Len(); i++ {
		oid, err := objectID(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		arr = append(arr, oid)
	}
	return arr, nil
}

func objectIDOrNil(val any) (*bson.ObjectID, error) {
	if val == nil {
		return nil, nil
	}
	id, err := objectID(val)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func objectID(val any) (bson.ObjectID, error) {
	switch v := val.(type) {
	case string:
		return bson.ObjectIDFromHex(v)
	case *string:
		if v == nil {
			return bson.ObjectID{}, errors.New("invalid ObjectID")
		}
		return bson.ObjectIDFromHex(*v)
	case bson.ObjectID:
		return v, nil
	case *bson.ObjectID:
		if v == nil {
			return bson.ObjectID{}, errors.New("invalid ObjectID")
		}
		return *v, nil
	default:
		return bson.ObjectID{}, errors.New("invalid ObjectID")
	}
}

func dateArray(val any) ([]time.Time, error) {
	valArr, ok := val.([]any)
	if !ok {
		return nil, errors.New("invalid date collection")
	}

	var arr []time.Time
	for _, s := range valArr {
		parsed, err := date(s)
		if err != nil {
			return nil, err
		}
		arr = append(arr, parsed)
	}
	return arr, nil
}

func dateOrNil(val any) (*time.Time, error) {
	if val == nil {
		return nil, nil
	}
	value, err := date(val)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func date(val any) (time.Time, error) {
	if val == nil {
		return time.Time{}, errors.New("invalid date")
	}

	switch v := val.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		return *v, nil
	case string:
		return timeutils.ParseDateString(v)
	case *string:
		return timeutils.ParseDateString(*v)
	case float64:
		return time.Unix(int64(v), 0), nil
	case int64:
		return time.Unix(v, 0), nil
	case *int64:
		return time.Unix(*v, 0), nil
	default:
		return time.Time{}, errors.New("invalid date format")
	}
}

// lookupField resolves a possibly dotted field name, falling back to the
// closest known ancestor so nested documents under a known field stay
// queryable.
func lookupField(fieldName string, fields FieldMap) (Field, bool) {
	field, exists := fields[fieldName]
	if exists {
		return field, true
	}

	parentField := fieldName
	for {
		lastDot := strings.LastIndex(parentField, ".")
		if lastDot == -1 {
			return Field{}, false
		}

		parentField = fieldName[0:lastDot]
		field, exists = fields[parentField]
		if exists {
			return field, true
		}
	}
}
