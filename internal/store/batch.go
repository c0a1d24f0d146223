package store

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// OpKind is the kind of a single write operation.
type OpKind string

// OpKind constants.
const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Column names shared by the listing and history tables.
const (
	ColMLS     = "mls"
	ColHistory = "history"
)

// Listing table columns, in storage order.
const (
	ColPropertyType       = "property_type"
	ColListPrice          = "list_price"
	ColMinListPrice       = "min_list_price"
	ColMaxListPrice       = "max_list_price"
	ColTimestampSQL       = "timestamp_sql"
	ColPhotoLink          = "photo_link"
	ColPhotoCount         = "photo_count"
	ColSearchAddress      = "search_address"
	ColStreet             = "street"
	ColStreetName         = "street_name"
	ColStreetAbbreviation = "street_abbreviation"
	ColArea               = "area"
	ColMunicipality       = "municipality"
	ColProvince           = "province"
	ColPostalCode         = "postal_code"
	ColBedrooms           = "bedrooms"
	ColWashrooms          = "washrooms"
	ColDescription        = "description"
	ColAttributes         = "attributes"
	ColFirstSeenAt        = "first_seen_at"
	ColUpdatedAt          = "updated_at"
)

var listingColumns = []string{
	ColMLS, ColPropertyType, ColListPrice, ColMinListPrice, ColMaxListPrice,
	ColTimestampSQL, ColPhotoLink, ColPhotoCount, ColSearchAddress,
	ColStreet, ColStreetName, ColStreetAbbreviation, ColArea, ColMunicipality,
	ColProvince, ColPostalCode, ColBedrooms, ColWashrooms, ColDescription,
	ColAttributes, ColFirstSeenAt, ColUpdatedAt,
}

var historyColumns = []string{ColMLS, ColHistory, ColUpdatedAt}

// tableColumns maps every writable table to its allowed column set. Table and
// column names are never taken from input; anything outside this map is
// rejected before SQL is built.
var tableColumns = func() map[string]map[string]bool {
	m := make(map[string]map[string]bool)
	for _, p := range domain.Partitions {
		m[p.ListingsTable()] = columnSet(listingColumns)
		m[p.HistoryTable()] = columnSet(historyColumns)
	}
	return m
}()

func columnSet(cols []string) map[string]bool {
	s := make(map[string]bool, len(cols))
	for _, c := range cols {
		s[c] = true
	}
	return s
}

// Field is one column assignment.
type Field struct {
	Column string
	Value  any
}

// WriteOperation is a single pending insert, update or delete against one
// row identified by MLS.
type WriteOperation struct {
	Table  string
	Kind   OpKind
	Key    string
	Fields []Field
}

// Batch is an ordered list of operations applied in one transaction.
type Batch []WriteOperation

// Value returns the value assigned to column, if present.
func (op *WriteOperation) Value(column string) (any, bool) {
	for _, f := range op.Fields {
		if f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

// Validate checks the table, kind and columns of op.
func (op *WriteOperation) Validate() error {
	cols, ok := tableColumns[op.Table]
	if !ok {
		return fmt.Errorf("unknown table %q", op.Table)
	}
	if op.Key == "" {
		return errors.New("operation key is empty")
	}

	switch op.Kind {
	case OpInsert, OpUpdate:
		if len(op.Fields) == 0 {
			return fmt.Errorf("%s on %s has no fields", op.Kind, op.Table)
		}
	case OpDelete:
		return nil
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	seen := make(map[string]bool, len(op.Fields))
	for _, f := range op.Fields {
		if !cols[f.Column] {
			return fmt.Errorf("unknown column %q for table %s", f.Column, op.Table)
		}
		if f.Column == ColMLS {
			return errors.New("mls is set from the operation key")
		}
		if seen[f.Column] {
			return fmt.Errorf("duplicate column %q", f.Column)
		}
		seen[f.Column] = true
	}
	return nil
}

// toSQL renders op as a statement with ? placeholders.
func (op *WriteOperation) toSQL() (string, []any) {
	switch op.Kind {
	case OpInsert:
		cols := make([]string, 0, len(op.Fields)+1)
		marks := make([]string, 0, len(op.Fields)+1)
		args := make([]any, 0, len(op.Fields)+1)

		cols = append(cols, ColMLS)
		marks = append(marks, "?")
		args = append(args, op.Key)
		for _, f := range op.Fields {
			cols = append(cols, f.Column)
			marks = append(marks, "?")
			args = append(args, f.Value)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			op.Table, strings.Join(cols, ", "), strings.Join(marks, ", ")), args

	case OpUpdate:
		sets := make([]string, 0, len(op.Fields))
		args := make([]any, 0, len(op.Fields)+1)
		for _, f := range op.Fields {
			sets = append(sets, f.Column+" = ?")
			args = append(args, f.Value)
		}
		args = append(args, op.Key)
		return fmt.Sprintf("UPDATE %s SET %s WHERE mls = ?",
			op.Table, strings.Join(sets, ", ")), args

	default:
		return fmt.Sprintf("DELETE FROM %s WHERE mls = ?", op.Table), []any{op.Key}
	}
}

// Validate checks every operation of the batch.
func (b Batch) Validate() error {
	var errs []error
	for i := range b {
		if err := b[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("operation %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
