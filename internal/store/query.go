package store

import (
	"fmt"
	"strings"
)

// likeEscaper makes %, _ and the escape character itself literal in a LIKE
// pattern that declares ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const (
	defaultLimit = 10
	maxLimit     = 500

	orderByTimestamp = "timestamp"
	orderByPrice     = "price"
	orderByPriceDesc = "price_desc"
)

// validOrderBy maps allowed OrderBy values to their SQL column expressions.
var validOrderBy = map[string]string{
	orderByTimestamp: "timestamp_sql DESC, mls ASC",
	orderByPrice:     "list_price ASC, mls ASC",
	orderByPriceDesc: "list_price DESC, mls ASC",
}

const defaultOrderBy = "timestamp_sql DESC, mls ASC"

// where builds the WHERE clause shared by listing, count and price queries.
func (q *ListingQuery) where() (string, []any) {
	var (
		conditions []string
		args       []any
	)

	eq := func(col string, v *string) {
		if v != nil {
			conditions = append(conditions, col+" = ?")
			args = append(args, *v)
		}
	}
	eq(ColPropertyType, q.PropertyType)
	eq(ColArea, q.Area)
	eq(ColMunicipality, q.Municipality)
	eq(ColProvince, q.Province)
	eq(ColBedrooms, q.Bedrooms)

	if len(q.AnyArea) > 0 {
		marks := make([]string, len(q.AnyArea))
		for i, a := range q.AnyArea {
			marks[i] = "?"
			args = append(args, a)
		}
		conditions = append(conditions, fmt.Sprintf("area IN (%s)", strings.Join(marks, ", ")))
	}

	if q.MinPrice != nil {
		conditions = append(conditions, "list_price >= ?")
		args = append(args, *q.MinPrice)
	}

	if q.MaxPrice != nil {
		conditions = append(conditions, "list_price <= ?")
		args = append(args, *q.MaxPrice)
	}

	if q.PriceDecreased {
		conditions = append(conditions, "min_list_price = list_price AND min_list_price < max_list_price")
	}

	if q.Search != nil && strings.TrimSpace(*q.Search) != "" {
		conditions = append(conditions, `search_address LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(strings.TrimSpace(*q.Search)))+"%")
	}

	if q.Since != nil {
		conditions = append(conditions, "timestamp_sql >= ?")
		args = append(args, *q.Since)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ToSQL builds the WHERE clause, ORDER BY, LIMIT, and OFFSET for a listing query
// against table. It returns two SQL strings (one for the data query, one for
// the count query) and the positional parameters.
func (q *ListingQuery) ToSQL(table string) (dataSQL, countSQL string, args []any) {
	whereClause, args := q.where()

	orderClause := defaultOrderBy
	if q.OrderBy != "" {
		if col, ok := validOrderBy[q.OrderBy]; ok {
			orderClause = col
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset := max(q.Offset, 0)

	dataSQL = fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY %s LIMIT %d OFFSET %d",
		listingSelectColumns, table, whereClause, orderClause, limit, offset,
	)

	countSQL = fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, whereClause)

	return dataSQL, countSQL, args
}

// PricesSQL builds an unpaginated query returning list_price for every row
// matching the filters.
func (q *ListingQuery) PricesSQL(table string) (string, []any) {
	whereClause, args := q.where()
	return fmt.Sprintf("SELECT list_price FROM %s%s ORDER BY list_price", table, whereClause), args
}
