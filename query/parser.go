package query

import (
	"strings"

	"github.com/go-errors/errors"
	"github.com/valyala/fastjson"
)

var queryPool fastjson.ParserPool
var wherePool fastjson.ParserPool
var fieldsPool fastjson.ParserPool
var orderPool fastjson.ParserPool

var operators = map[string]bool{
	"eq":     true,
	"neq":    true,
	"gt":     true,
	"gte":    true,
	"lt":     true,
	"lte":    true,
	"in":     true,
	"nin":    true,
	"and":    true,
	"or":     true,
	"like":   true,
	"nlike":  true,
	"exists": true,
}

func parseWhereValue(where *fastjson.Value) (Where, error) {
	if where == nil {
		return nil, nil
	}

	if where.Type() != fastjson.TypeObject {
		return nil, errors.New("invalid where clause")
	}

	val, _ := where.Object()

	var nestedError error

	likeCond := val.Get("like")
	nlikeCond := val.Get("nlike")
	opts := val.Get("options")

	if likeCond != nil {
		return Where{
			"like":    rawValue(likeCond),
			"options": rawValue(opts),
		}, nil
	}

	if nlikeCond != nil {
		return Where{
			"nlike":   rawValue(nlikeCond),
			"options": rawValue(opts),
		}, nil
	}

	result := Where{}
	val.Visit(func(key []byte, v *fastjson.Value) {
		keyStr := string(key)

		// Driver operators never come from the outside.
		if strings.HasPrefix(keyStr, "$") {
			nestedError = errors.Errorf("invalid use of operator or field: %s", keyStr)
			return
		}

		valueType := v.Type()

		switch {
		case keyStr == "and" || keyStr == "or":
			if valueType != fastjson.TypeArray {
				nestedError = errors.New("invalid and/or condition")
				return
			}
			andOr := AndOrCondition{}
			arr, _ := v.Array()
			for _, nested := range arr {
				cond, err := parseWhereValue(nested)
				if err != nil {
					nestedError = err
				}
				andOr = append(andOr, cond)
			}
			result[keyStr] = andOr
		case valueType == fastjson.TypeObject:
			nested, err := parseWhereValue(v)
			if err != nil {
				nestedError = err
			}
			result[keyStr] = nested
		default:
			_, isOp := operators[keyStr]
			if isOp && (keyStr == "in" || keyStr == "nin") && valueType != fastjson.TypeArray {
				nestedError = errors.Errorf("%s requires an array operand", keyStr)
				return
			}
			value := rawValue(v)
			if isOp {
				result[keyStr] = value
			} else {
				result[keyStr] = Where{"eq": value}
			}
		}
	})

	return result, nestedError
}

func rawValue(v *fastjson.Value) any {
	if v == nil {
		return nil
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeArray:
		arr := v.GetArray()
		var value []any
		for _, current := range arr {
			value = append(value, rawValue(current))
		}
		return value
	default:
		return nil
	}
}

func parseOrderValue(order *fastjson.Value) ([]Order, error) {
	switch order.Type() { //nolint:exhaustive
	case fastjson.TypeString:
		parsed, err := parseOrderStr(string(order.GetStringBytes()))
		if err != nil {
			return nil, err
		}
		return []Order{parsed}, nil
	case fastjson.TypeArray:
		arr := order.GetArray()
		var result []Order
		for _, value := range arr {
			if value.Type() != fastjson.TypeString {
				return nil, errors.New("invalid order param")
			}
			parsed, err := parseOrderStr(string(value.GetStringBytes()))
			if err != nil {
				return nil, err
			}
			result = append(result, parsed)
		}
		return result, nil
	default:
		return nil, errors.New("invalid order param")
	}
}

func parseOrderStr(orderStr string) (Order, error) {
	parts := strings.Split(strings.TrimSpace(orderStr), " ")
	if len(parts) != 2 {
		return Order{}, errors.New("invalid order param")
	}

	field := parts[0]
	direction := strings.ToUpper(parts[1])
	if direction != "ASC" && direction != "DESC" {
		return Order{}, errors.New("invalid order param")
	}

	return Order{Field: field, Direction: direction}, nil
}

func parseFieldsValue(v *fastjson.Value) (Fields, error) {
	fields := Fields{}
	switch v.Type() { //nolint:exhaustive
	case fastjson.TypeArray:
		arr := v.GetArray()
		for _, value := range arr {
			if value.Type() != fastjson.TypeString {
				return nil, errors.New("invalid fields param")
			}
			fields[string(value.GetStringBytes())] = true
		}
	case fastjson.TypeObject:
		obj := v.GetObject()
		obj.Visit(func(key []byte, v *fastjson.Value) {
			prop := string(key)
			switch v.Type() { //nolint:exhaustive
			case fastjson.TypeFalse:
				fields[prop] = false
			case fastjson.TypeTrue:
				fields[prop] = true
			}
		})
	default:
		return nil, errors.New("invalid fields param")
	}
	return fields, nil
}

func parseQueryValue(parsed *fastjson.Value) (*Query, error) {
	if parsed.Type() != fastjson.TypeObject {
		return nil, errors.New("invalid query")
	}

	q := &Query{}

	if whereValue := parsed.Get("where"); whereValue != nil {
		where, err := parseWhereValue(whereValue)
		if err != nil {
			return nil, err
		}
		q.Where = where
	}

	if orderValue := parsed.Get("order"); orderValue != nil {
		order, err := parseOrderValue(orderValue)
		if err != nil {
			return nil, err
		}
		q.Order = order
	}

	if fieldsValue := parsed.Get("fields"); fieldsValue != nil {
		fields, err := parseFieldsValue(fieldsValue)
		if err != nil {
			return nil, err
		}
		q.Fields = fields
	}

	if limitValue := parsed.Get("limit"); limitValue != nil {
		q.Limit = limitValue.GetUint()
	}

	if skipValue := parsed.Get("skip"); skipValue != nil {
		q.Skip = skipValue.GetUint()
	}

	return q, nil
}

// ParseWhere parses a JSON predicate tree.
func ParseWhere(f string) (Where, error) {
	parser := wherePool.Get()
	defer wherePool.Put(parser)

	parsed, err := parser.Parse(f)
	if err != nil {
		return nil, errors.New("cannot parse where clause")
	}
	return parseWhereValue(parsed)
}

// ParseOrder parses "field ASC|DESC" strings, single or as an array.
func ParseOrder(f string) ([]Order, error) {
	parser := orderPool.Get()
	defer orderPool.Put(parser)

	parsed, err := parser.Parse(f)
	if err != nil {
		return nil, errors.New("cannot parse order param")
	}
	return parseOrderValue(parsed)
}

// ParseFields parses a projection, given as an array of field names or an
// object of field: bool.
func ParseFields(f string) (Fields, error) {
	parser := fieldsPool.Get()
	defer fieldsPool.Put(parser)

	parsed, err := parser.Parse(f)
	if err != nil {
		return nil, errors.New("cannot parse fields param")
	}
	return parseFieldsValue(parsed)
}

// Parse parses a full JSON query document: {where, order, fields, limit, skip}.
func Parse(f string) (*Query, error) {
	parser := queryPool.Get()
	defer queryPool.Put(parser)

	parsed, err := parser.Parse(f)
	if err != nil {
		return nil, errors.New("cannot parse query")
	}
	return parseQueryValue(parsed)
}
