package docstore

import (
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xompass/vsaas-docstore/query"
)

var objectIDType = reflect.TypeOf(bson.ObjectID{})
var timeType = reflect.TypeOf(time.Time{})
var dateType = reflect.TypeOf(Date{})

// fieldMapFor builds the queryable-field map of a document type: externally
// visible (JSON) names, including dotted paths for nested documents, mapped
// to BSON column names and coercion kinds. Projection control comes from
// `filter:"fields=never"` / `filter:"fields=always"` tags.
func fieldMapFor[T any]() query.FieldMap {
	var doc T
	fields := query.FieldMap{}
	t := reflect.TypeOf(doc)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fields
	}
	collectFields(t, "", "", fields)
	return fields
}

func collectFields(t reflect.Type, jsonPrefix string, bsonPrefix string, fields query.FieldMap) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		jsonName, jsonSkip := tagName(sf, "json")
		bsonName, bsonSkip, inline := bsonTagName(sf)
		if jsonSkip || bsonSkip {
			continue
		}

		ft := sf.Type
		nullable := false
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
			nullable = true
		}

		if inline && ft.Kind() == reflect.Struct {
			collectFields(ft, jsonPrefix, bsonPrefix, fields)
			continue
		}

		field := query.Field{
			Column:   bsonPrefix + bsonName,
			Kind:     fieldKind(ft),
			Nullable: nullable,
		}

		switch sf.Tag.Get("filter") {
		case "fields=never":
			field.Banned = jsonPrefix == ""
		case "fields=always":
			field.Always = jsonPrefix == ""
		}

		fields[jsonPrefix+jsonName] = field

		elem := ft
		if elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array {
			elem = elem.Elem()
			if elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
		}

		if field.Kind == query.KindPlain && elem.Kind() == reflect.Struct && elem != timeType && elem != dateType {
			collectFields(elem, jsonPrefix+jsonName+".", bsonPrefix+bsonName+".", fields)
		}
	}
}

func fieldKind(t reflect.Type) query.FieldKind {
	switch t {
	case objectIDType:
		return query.KindObjectID
	case timeType, dateType:
		return query.KindDate
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		elem := t.Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if elem == objectIDType {
			return query.KindObjectID
		}
		if elem == timeType || elem == dateType {
			return query.KindDate
		}
	}
	return query.KindPlain
}

func tagName(sf reflect.StructField, tag string) (name string, skip bool) {
	value := sf.Tag.Get(tag)
	if value == "-" {
		return "", true
	}
	name = strings.Split(value, ",")[0]
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	return name, false
}

func bsonTagName(sf reflect.StructField) (name string, skip bool, inline bool) {
	value := sf.Tag.Get("bson")
	if value == "-" {
		return "", true, false
	}
	parts := strings.Split(value, ",")
	name = parts[0]
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	for _, opt := range parts[1:] {
		if opt == "inline" {
			inline = true
		}
	}
	return name, false, inline
}
