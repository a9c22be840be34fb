package docstore

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/text/unicode/norm"
)

const (
	SortAscending  = 1
	SortDescending = -1
)

// PageRequest describes one page of a filtered, optionally searched,
// optionally sorted listing.
type PageRequest struct {
	// Filter is the base match; nil matches everything.
	Filter bson.M
	// Search is a full-text term resolved against the collection's text
	// index. Blank (or whitespace-only) disables search entirely.
	Search string
	// SortField and SortDirection order the page. An empty field or a
	// direction other than SortAscending/SortDescending leaves the listing
	// in natural order.
	SortField     string
	SortDirection int
	// Page is 1-based. PageSize 0 asks for the total only.
	PageSize int64
	Page     int64
}

type PageResult[T any] struct {
	Total int64 `json:"total"`
	Items []T   `json:"items"`
}

// FindSmartPage returns one page of documents plus the total match count.
// When the request carries a search term the filter is combined with a
// $text clause; otherwise the filter is issued untouched. The count and the
// page fetch are separate reads, so the total can drift from the items
// under concurrent writes.
func (c *Collection[T]) FindSmartPage(ctx context.Context, req PageRequest) (*PageResult[T], error) {
	if req.Page < 1 {
		return nil, newError(CodeInvalidArgument, "page number must be 1 or greater")
	}
	if req.PageSize < 0 {
		return nil, newError(CodeInvalidArgument, "page size cannot be negative")
	}

	query := c.fixQuery(composeSearchFilter(req.Filter, req.Search))

	total, err := c.driver.CountDocuments(ctx, query)
	if err != nil {
		return nil, mapStoreError(err)
	}

	// A zero limit means "unbounded" to the driver, so short-circuit the
	// count-only request before the fetch.
	if req.PageSize == 0 {
		return &PageResult[T]{Total: total, Items: []T{}}, nil
	}

	findOpts := options.Find().
		SetSkip((req.Page - 1) * req.PageSize).
		SetLimit(req.PageSize)

	if sort, ok := pageSort(req.SortField, req.SortDirection); ok {
		findOpts.SetSort(sort)
	}

	cursor, err := c.driver.Find(ctx, query, findOpts)
	if err != nil {
		return nil, mapStoreError(err)
	}

	items := []T{}
	if err = cursor.All(ctx, &items); err != nil {
		return nil, mapStoreError(err)
	}

	return &PageResult[T]{Total: total, Items: items}, nil
}

// composeSearchFilter combines the base filter with a $text clause for the
// search term. A blank term returns the filter as given, with no wrapper.
func composeSearchFilter(filter bson.M, term string) bson.M {
	term = normalizeSearchTerm(term)
	if term == "" {
		return orEmpty(filter)
	}

	textClause := bson.M{opText: bson.M{opSearch: term}}
	if len(filter) == 0 {
		return textClause
	}

	return bson.M{opAnd: bson.A{filter, textClause}}
}

// normalizeSearchTerm trims the term and brings it to NFC so composed and
// decomposed input hit the same index entries.
func normalizeSearchTerm(term string) string {
	return norm.NFC.String(strings.TrimSpace(term))
}

func pageSort(field string, direction int) (bson.D, bool) {
	if field == "" {
		return nil, false
	}
	if direction != SortAscending && direction != SortDescending {
		return nil, false
	}
	return bson.D{{Key: field, Value: direction}}, true
}
