package docstore

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Optional lifecycle hooks. A document type implements these on its pointer
// receiver to run logic before the corresponding store round-trip.
type BeforeCreateHook interface {
	BeforeCreate() error
}

type BeforeUpdateHook interface {
	BeforeUpdate() error
}

type BeforeDeleteHook interface {
	BeforeDelete() error
}

// Indexable lets a document type declare the indexes its collection needs.
// Manager.EnsureIndexes creates them at startup.
type Indexable interface {
	Indexes() []IndexDefinition
}

var dateFormat = "2006-01-02T15:04:05.000Z"

// Date is a BSON date that tolerates documents written with the timestamp
// stored as int64 milliseconds or int32 seconds instead of a BSON DateTime.
type Date struct {
	time.Time
}

func (date *Date) UnmarshalBSONValue(t bson.Type, data []byte) error {
	switch t {
	case bson.TypeDateTime, bson.TypeInt64:
		if len(data) < 8 {
			return fmt.Errorf("invalid %v data length", t)
		}
		milliseconds := int64(data[0]) | int64(data[1])<<8 | int64(data[2])<<16 | int64(data[3])<<24 |
			int64(data[4])<<32 | int64(data[5])<<40 | int64(data[6])<<48 | int64(data[7])<<56
		*date = Date{time.Unix(0, milliseconds*int64(time.Millisecond))}
		return nil
	case bson.TypeInt32:
		if len(data) < 4 {
			return fmt.Errorf("invalid Int32 data length")
		}
		seconds := int32(data[0]) | int32(data[1])<<8 | int32(data[2])<<16 | int32(data[3])<<24
		*date = Date{time.Unix(int64(seconds), 0)}
		return nil
	default:
		return fmt.Errorf("cannot unmarshal %v into Date", t)
	}
}

func (date Date) MarshalBSONValue() (bson.Type, []byte, error) {
	milliseconds := date.Time.UnixNano() / int64(time.Millisecond)

	data := make([]byte, 8)
	for i := range data {
		data[i] = byte(milliseconds >> (8 * i))
	}

	return bson.TypeDateTime, data, nil
}

func (date *Date) MarshalJSON() ([]byte, error) {
	stamp := fmt.Sprintf("%q", date.Time.Format(dateFormat))
	return []byte(stamp), nil
}
