package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// jobRunRetention is how long completed job runs are kept.
const jobRunRetention = 30 * 24 * time.Hour

// repo implements the read and bookkeeping queries on top of any querier. It
// is shared by both backends and by pooled and acquired connections.
type repo struct {
	q querier
	d dialect
}

func (r repo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	return r.q.exec(ctx, r.d.rebind(query), args...)
}

func (r repo) queryRow(ctx context.Context, query string, args ...any) scannable {
	return r.q.queryRow(ctx, r.d.rebind(query), args...)
}

func (r repo) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	return r.q.query(ctx, r.d.rebind(query), args...)
}

// GetListing retrieves a listing by MLS.
func (r repo) GetListing(ctx context.Context, p domain.Partition, mls string) (*domain.Listing, error) {
	l := &domain.Listing{}
	err := scanListing(r.queryRow(ctx, queryGetListing(p.ListingsTable()), mls), l)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing %s: %w", mls, err)
	}
	return l, nil
}

// GetPriceHistory retrieves the price ledger for an MLS.
func (r repo) GetPriceHistory(
	ctx context.Context,
	p domain.Partition,
	mls string,
) (*domain.PriceHistory, error) {
	var (
		h   domain.PriceHistory
		raw string
	)
	err := r.queryRow(ctx, queryGetHistory(p.HistoryTable()), mls).Scan(&h.MLS, &raw)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting price history %s: %w", mls, err)
	}
	if err := json.Unmarshal([]byte(raw), &h.Points); err != nil {
		return nil, fmt.Errorf("decoding price history %s: %w", mls, err)
	}
	return &h, nil
}

// ListMLS returns every MLS of the partition, optionally for one property type.
func (r repo) ListMLS(ctx context.Context, p domain.Partition, propertyType string) ([]string, error) {
	var (
		rows rowIter
		err  error
	)
	if propertyType == "" {
		rows, err = r.query(ctx, queryListMLS(p.ListingsTable()))
	} else {
		rows, err = r.query(ctx, queryListMLSByType(p.ListingsTable()), propertyType)
	}
	if err != nil {
		return nil, fmt.Errorf("querying mls values: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var mls string
		if err := rows.Scan(&mls); err != nil {
			return nil, fmt.Errorf("scanning mls: %w", err)
		}
		out = append(out, mls)
	}
	return out, rows.Err()
}

// ListListings queries listings with optional filters, returning results and total count.
func (r repo) ListListings(
	ctx context.Context,
	p domain.Partition,
	opts *ListingQuery,
) ([]domain.Listing, int, error) {
	if opts == nil {
		opts = &ListingQuery{}
	}
	dataSQL, countSQL, args := opts.ToSQL(p.ListingsTable())

	// Get total count.
	var total int
	if err := r.queryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting listings: %w", err)
	}

	// Get data rows.
	rows, err := r.query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := scanListing(rows, &l); err != nil {
			return nil, 0, fmt.Errorf("scanning listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating listings: %w", err)
	}

	return listings, total, nil
}

// ListPrices returns list_price for every listing matching the filters,
// ignoring pagination.
func (r repo) ListPrices(
	ctx context.Context,
	p domain.Partition,
	opts *ListingQuery,
) ([]decimal.Decimal, error) {
	if opts == nil {
		opts = &ListingQuery{}
	}
	query, args := opts.PricesSQL(p.ListingsTable())

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying prices: %w", err)
	}
	defer rows.Close()

	var prices []decimal.Decimal
	for rows.Next() {
		var d decimal.Decimal
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning price: %w", err)
		}
		prices = append(prices, d)
	}
	return prices, rows.Err()
}

// InsertJobRun records the start of a job and returns its UUID.
func (r repo) InsertJobRun(ctx context.Context, jobName string) (string, error) {
	id := uuid.NewString()
	if _, err := r.exec(ctx, queryInsertJobRun, id, jobName, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("inserting job run: %w", err)
	}
	return id, nil
}

// CompleteJobRun marks a job run as finished with the given status and metadata.
func (r repo) CompleteJobRun(
	ctx context.Context,
	id string,
	status string,
	errText string,
	rowsAffected int,
) error {
	_, err := r.exec(ctx, queryCompleteJobRun, time.Now().UTC(), status, errText, rowsAffected, id)
	if err != nil {
		return fmt.Errorf("completing job run: %w", err)
	}
	return nil
}

// ListJobRuns returns the most recent runs for a specific job, newest first.
func (r repo) ListJobRuns(ctx context.Context, jobName string, limit int) ([]domain.JobRun, error) {
	rows, err := r.query(ctx, queryListJobRuns, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying job runs: %w", err)
	}
	defer rows.Close()

	return scanJobRuns(rows)
}

// ListLatestJobRuns returns the single most recent run for each distinct job name.
func (r repo) ListLatestJobRuns(ctx context.Context) ([]domain.JobRun, error) {
	rows, err := r.query(ctx, queryListLatestJobRuns)
	if err != nil {
		return nil, fmt.Errorf("querying latest job runs: %w", err)
	}
	defer rows.Close()

	return scanJobRuns(rows)
}

// RecoverStaleJobRuns marks any 'running' job rows older than olderThan as 'crashed',
// then deletes all rows older than 30 days. Returns the number of rows marked as crashed.
func (r repo) RecoverStaleJobRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now().UTC()

	affected, err := r.exec(ctx, queryMarkStaleJobRunsCrashed, now, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("marking stale job runs crashed: %w", err)
	}

	if _, err := r.exec(ctx, queryDeleteOldJobRuns, now.Add(-jobRunRetention)); err != nil {
		return int(affected), fmt.Errorf("deleting old job runs: %w", err)
	}

	return int(affected), nil
}

// scanJobRuns scans rows from a job_runs query into a slice.
// SaveHalt records that automated ingestion of st.Partition is halted. An
// existing record is kept.
func (r repo) SaveHalt(ctx context.Context, st domain.PartitionStatus) error {
	at := time.Now().UTC()
	if st.HaltedAt != nil {
		at = st.HaltedAt.UTC()
	}
	if _, err := r.exec(ctx, querySaveHalt, string(st.Partition), st.Reason, at); err != nil {
		return fmt.Errorf("saving halt for %s: %w", st.Partition, err)
	}
	return nil
}

// DeleteHalt removes the halt record of p, if any.
func (r repo) DeleteHalt(ctx context.Context, p domain.Partition) error {
	if _, err := r.exec(ctx, queryDeleteHalt, string(p)); err != nil {
		return fmt.Errorf("deleting halt for %s: %w", p, err)
	}
	return nil
}

// ListHalts returns every recorded halt.
func (r repo) ListHalts(ctx context.Context) ([]domain.PartitionStatus, error) {
	rows, err := r.query(ctx, queryListHalts)
	if err != nil {
		return nil, fmt.Errorf("querying halts: %w", err)
	}
	defer rows.Close()

	var out []domain.PartitionStatus
	for rows.Next() {
		var (
			name string
			st   domain.PartitionStatus
			at   time.Time
		)
		if err := rows.Scan(&name, &st.Reason, &at); err != nil {
			return nil, fmt.Errorf("scanning halt: %w", err)
		}
		at = at.UTC()
		st.Partition = domain.Partition(name)
		st.Halted = true
		st.HaltedAt = &at
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanJobRuns(rows rowIter) ([]domain.JobRun, error) {
	var runs []domain.JobRun
	for rows.Next() {
		var r domain.JobRun
		if err := rows.Scan(
			&r.ID, &r.JobName, &r.StartedAt, &r.CompletedAt,
			&r.Status, &r.ErrorText, &r.RowsAffected,
		); err != nil {
			return nil, fmt.Errorf("scanning job run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// scanListing scans a full listing row in listingColumns order.
func scanListing(row scannable, l *domain.Listing) error {
	var photoLink, attributes string
	if err := row.Scan(
		&l.MLS, &l.PropertyType, &l.ListPrice, &l.MinListPrice, &l.MaxListPrice,
		&l.TimestampSQL, &photoLink, &l.PhotoCount, &l.SearchAddress,
		&l.Street, &l.StreetName, &l.StreetAbbreviation, &l.Area, &l.Municipality,
		&l.Province, &l.PostalCode, &l.Bedrooms, &l.Washrooms, &l.Description,
		&attributes, &l.FirstSeenAt, &l.UpdatedAt,
	); err != nil {
		return err
	}

	if photoLink != "" {
		if err := json.Unmarshal([]byte(photoLink), &l.PhotoLink); err != nil {
			return fmt.Errorf("decoding photo_link: %w", err)
		}
	}
	if attributes != "" && attributes != "{}" {
		if err := json.Unmarshal([]byte(attributes), &l.Attributes); err != nil {
			return fmt.Errorf("decoding attributes: %w", err)
		}
	}
	return nil
}

// conn is an acquired connection implementing Conn.
type conn struct {
	repo
	c dbConn
}

// ApplyBatch applies every operation of batch in one transaction.
func (c *conn) ApplyBatch(ctx context.Context, batch Batch) error {
	return applyBatch(ctx, c.c, c.d, batch)
}

// Release returns the connection to its pool.
func (c *conn) Release() {
	c.c.release()
}
