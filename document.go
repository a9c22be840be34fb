package docstore

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	fieldID       = "_id"
	fieldCreated  = "created"
	fieldModified = "modified"
	fieldDeleted  = "deleted"

	opSet         = "$set"
	opAnd         = "$and"
	opText        = "$text"
	opSearch      = "$search"
	opCurrentDate = "$currentDate"
	opSetOnInsert = "$setOnInsert"
	opType        = "$type"

	commandPrefix = "$"
)

const bsonTypeNull = 10

type updateFlags struct {
	Insert bool
	Update bool
}

func toBsonMap(v any) (doc bson.M, err error) {
	if v == nil {
		return bson.M{}, nil
	}

	if bsonMap, ok := v.(bson.M); ok {
		return bsonMap, nil
	}

	data, err := bson.Marshal(v)
	if err != nil {
		return
	}

	err = bson.Unmarshal(data, &doc)
	return doc, err
}

// fixQuery applies the soft-delete guard: stamped documents never match.
func (c *Collection[T]) fixQuery(query bson.M) bson.M {
	if c.opts.SoftDelete {
		query = bson.M{
			opAnd: bson.A{
				query,
				bson.M{fieldDeleted: bson.M{opType: bsonTypeNull}},
			},
		}
	}
	return query
}

func (c *Collection[T]) prepareInsertDocument(doc any) (bson.M, error) {
	document, err := toBsonMap(doc)
	if err != nil {
		return nil, err
	}

	if c.opts.Created {
		document[fieldCreated] = time.Now()
	}

	if c.opts.Modified {
		document[fieldModified] = time.Now()
	}

	if c.opts.SoftDelete {
		document[fieldDeleted] = nil
	}

	return document, nil
}

// prepareUpdateDocument normalizes an update: plain-field documents are
// wrapped in $set, field/command mixes are rejected, and the managed
// created/modified/deleted stamps are stripped from caller input and
// re-applied through $currentDate / $setOnInsert.
func (c *Collection[T]) prepareUpdateDocument(update any, updateDeleted updateFlags, setCreated updateFlags) (bson.M, error) {
	document, err := toBsonMap(update)
	if err != nil {
		return nil, err
	}

	hasFields := false
	hasCommands := false
	for key := range document {
		if strings.HasPrefix(key, commandPrefix) {
			hasCommands = true
		} else {
			hasFields = true
		}
	}

	if hasFields && hasCommands {
		return nil, errors.New("the update has a mix between fields and commands")
	}

	var newUpdate bson.M
	var bsonSet bson.M

	if hasCommands {
		newUpdate = document
		set, ok := document[opSet]
		if ok {
			switch set := set.(type) {
			case bson.M:
				bsonSet = set
			case bson.D:
				bsonSet = bson.M{}
				for _, elem := range set {
					bsonSet[elem.Key] = elem.Value
				}
			default:
				_json, err := sonic.Marshal(set)
				if err != nil {
					return nil, errors.Errorf("invalid $set value: %T", set)
				}

				err = sonic.Unmarshal(_json, &bsonSet)
				if err != nil {
					return nil, errors.Errorf("invalid $set value: %T", set)
				}
			}
		} else {
			bsonSet = bson.M{}
		}
	}

	if hasFields {
		newUpdate = bson.M{}
		bsonSet = document
	}

	if newUpdate == nil {
		newUpdate = bson.M{}
	}
	if bsonSet == nil {
		bsonSet = bson.M{}
	}

	// The managed stamps cannot be set by callers.
	if c.opts.Created {
		delete(bsonSet, fieldCreated)
	}

	if c.opts.Modified {
		delete(bsonSet, fieldModified)
	}

	if c.opts.SoftDelete {
		delete(bsonSet, fieldDeleted)
	}

	if len(bsonSet) > 0 {
		newUpdate[opSet] = bsonSet
	} else {
		delete(newUpdate, opSet)
	}

	if c.opts.Modified || c.opts.Created || c.opts.SoftDelete {
		currentDate, ok := newUpdate[opCurrentDate]
		var bsonCurrentDate bson.M
		if ok {
			bsonCurrentDate, ok = currentDate.(bson.M)
			if !ok {
				return nil, errors.New("invalid $currentDate value")
			}
		} else {
			bsonCurrentDate = bson.M{}
		}

		if c.opts.Modified {
			bsonCurrentDate[fieldModified] = true
		}

		if c.opts.SoftDelete {
			if updateDeleted.Update {
				bsonCurrentDate[fieldDeleted] = true
			} else {
				delete(bsonCurrentDate, fieldDeleted)
			}
		}

		if c.opts.Created {
			if setCreated.Update && !setCreated.Insert {
				bsonCurrentDate[fieldCreated] = true
			} else {
				delete(bsonCurrentDate, fieldCreated)
			}
		}

		if len(bsonCurrentDate) > 0 {
			newUpdate[opCurrentDate] = bsonCurrentDate
		} else {
			delete(newUpdate, opCurrentDate)
		}
	}

	if (c.opts.Created || c.opts.SoftDelete) && setCreated.Insert {
		temp, ok := newUpdate[opSetOnInsert]
		var setOnInsert bson.M
		if ok {
			setOnInsert, ok = temp.(bson.M)
			if !ok {
				return nil, errors.New("invalid $setOnInsert value")
			}
		} else {
			setOnInsert = bson.M{}
		}

		if c.opts.Created {
			setOnInsert[fieldCreated] = time.Now()
		}

		if c.opts.SoftDelete {
			setOnInsert[fieldDeleted] = nil
		}

		if len(setOnInsert) > 0 {
			newUpdate[opSetOnInsert] = setOnInsert
		} else {
			delete(newUpdate, opSetOnInsert)
		}
	}

	if len(newUpdate) == 0 {
		return nil, errors.New("the update document is empty")
	}

	return newUpdate, nil
}
