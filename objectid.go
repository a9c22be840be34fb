package docstore

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// CoercePolicy controls how identifier strings are promoted to ObjectIDs.
type CoercePolicy int

const (
	// PolicyLenient degrades invalid input to an absent identifier. It never
	// returns an error; call sites treat absence as "no match".
	PolicyLenient CoercePolicy = iota

	// PolicyStrict surfaces malformed identifier strings as
	// InvalidObjectIDError so programmer errors fail loudly instead of
	// silently matching nothing. Absence (nil input) is still absence.
	PolicyStrict
)

// CoerceObjectID converts a caller-supplied identifier into a bson.ObjectID.
// The second return reports whether an identifier is present. An existing
// bson.ObjectID passes through unchanged under either policy.
func CoerceObjectID(input any, policy CoercePolicy) (bson.ObjectID, bool, error) {
	if input == nil {
		return bson.NilObjectID, false, nil
	}

	switch v := input.(type) {
	case bson.ObjectID:
		return v, true, nil
	case *bson.ObjectID:
		if v == nil {
			return bson.NilObjectID, false, nil
		}
		return *v, true, nil
	case string:
		oid, err := bson.ObjectIDFromHex(v)
		if err != nil {
			if policy == PolicyStrict {
				return bson.NilObjectID, false, &InvalidObjectIDError{Value: v}
			}
			return bson.NilObjectID, false, nil
		}
		return oid, true, nil
	case *string:
		if v == nil {
			return bson.NilObjectID, false, nil
		}
		return CoerceObjectID(*v, policy)
	default:
		if policy == PolicyStrict {
			return bson.NilObjectID, false, &InvalidObjectIDError{Value: input}
		}
		return bson.NilObjectID, false, nil
	}
}
