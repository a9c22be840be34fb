package docstore

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Stable error codes returned by this package. Driver failures keep their
// original error reachable through errors.Unwrap.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInvalidObjectID  = "INVALID_OBJECT_ID"
	CodeDuplicateKey     = "DUPLICATE_KEY"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeConnectionError  = "CONNECTION_ERROR"
	CodeOperationFailed  = "OPERATION_FAILED"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code string, message string, cause ...error) *Error {
	err := &Error{Code: code, Message: message}
	if len(cause) > 0 {
		err.Err = cause[0]
	}
	return err
}

// InvalidObjectIDError is raised by strict identifier coercion when the
// input is syntactically invalid. It carries the offending value.
type InvalidObjectIDError struct {
	Value any
}

func (e *InvalidObjectIDError) Error() string {
	return fmt.Sprintf("invalid ObjectID: %v", e.Value)
}

// mapStoreError classifies driver failures into stable codes.
// mongo.ErrNoDocuments never reaches this function: single-document lookups
// normalize it to a nil result before classification.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return newError(CodeConnectionError, "database connection error", err)
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, writeError := range writeErr.WriteErrors {
			switch writeError.Code {
			case 11000, 11001:
				return newError(CodeDuplicateKey, "duplicate key error: "+writeError.Message, err)
			case 121:
				return newError(CodeValidationFailed, "document validation error: "+writeError.Message, err)
			default:
				return newError(CodeOperationFailed, "write operation failed: "+writeError.Message, err)
			}
		}
	}

	var bulkWriteErr mongo.BulkWriteException
	if errors.As(err, &bulkWriteErr) {
		return newError(CodeOperationFailed, "bulk write operation failed", err)
	}

	var commandErr mongo.CommandError
	if errors.As(err, &commandErr) {
		switch commandErr.Code {
		case 11000, 11001:
			return newError(CodeDuplicateKey, "duplicate key error: "+commandErr.Message, err)
		case 121:
			return newError(CodeValidationFailed, "document validation error: "+commandErr.Message, err)
		default:
			return newError(CodeOperationFailed, "command failed: "+commandErr.Message, err)
		}
	}

	return newError(CodeOperationFailed, "database operation failed", err)
}
