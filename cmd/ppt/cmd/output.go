package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	apiclient "github.com/donaldgifford/property-price-tracker/internal/api/client"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

const timeLayout = "2006-01-02 15:04:05"

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(0)
}

func nullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return money(d.Decimal)
}

func printListingsTable(w io.Writer, listings []apiclient.Listing) error {
	tw := newTabWriter(w)
	tw.writef("MLS\tTYPE\tPRICE\tMIN\tMAX\tDROP\tADDRESS\n")
	for i := range listings {
		l := &listings[i]
		drop := ""
		if l.PriceDecreased {
			drop = "yes"
		}
		tw.writef("%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.MLS,
			l.PropertyType,
			money(l.ListPrice),
			nullMoney(l.MinListPrice),
			nullMoney(l.MaxListPrice),
			drop,
			truncate(l.SearchAddress, 40),
		)
	}
	return tw.finish()
}

func printListingDetail(w io.Writer, l *apiclient.Listing) error {
	tw := newTabWriter(w)
	tw.writef("MLS:\t%s\n", l.MLS)
	tw.writef("Type:\t%s\n", l.PropertyType)
	tw.writef("Price:\t%s\n", money(l.ListPrice))
	tw.writef("Range:\t%s - %s\n", nullMoney(l.MinListPrice), nullMoney(l.MaxListPrice))
	tw.writef("Price Drop:\t%v\n", l.PriceDecreased)
	tw.writef("Address:\t%s\n", l.SearchAddress)
	tw.writef("Bedrooms:\t%s\n", l.Bedrooms)
	tw.writef("Washrooms:\t%s\n", l.Washrooms)
	tw.writef("Photos:\t%d\n", l.PhotoCount)
	tw.writef("Listed:\t%s\n", l.TimestampSQL.Format(timeLayout))
	tw.writef("First Seen:\t%s\n", l.FirstSeenAt.Format(timeLayout))
	return tw.finish()
}

func printHistoryTable(w io.Writer, h *domain.PriceHistory) error {
	tw := newTabWriter(w)
	tw.writef("DATE\tPRICE\tCHANGE\n")
	for i, pt := range h.Points {
		change := "-"
		if i > 0 {
			diff := pt.Price.Sub(h.Points[i-1].Price)
			change = diff.StringFixed(0)
			if diff.IsPositive() {
				change = "+" + change
			}
		}
		tw.writef("%s\t%s\t%s\n", pt.Date.Format(timeLayout), money(pt.Price), change)
	}
	return tw.finish()
}

func printStatsTable(w io.Writer, st *domain.ListingStats) error {
	names := make([]string, 0, len(st.Metrics))
	for name := range st.Metrics {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := newTabWriter(w)
	tw.writef("METRIC\tVALUE\tSOURCE\n")
	for _, name := range names {
		v := st.Metrics[name]
		value := "-"
		if v.Value != nil {
			value = fmt.Sprintf("%.2f", *v.Value)
		}
		tw.writef("%s\t%s\t%s\n", name, value, v.Source)
	}
	return tw.finish()
}

func printPartitionsTable(w io.Writer, statuses []domain.PartitionStatus) error {
	tw := newTabWriter(w)
	tw.writef("PARTITION\tHALTED\tSINCE\tREASON\n")
	for _, s := range statuses {
		since := "-"
		if s.HaltedAt != nil {
			since = s.HaltedAt.Format(timeLayout)
		}
		tw.writef("%s\t%v\t%s\t%s\n", s.Partition, s.Halted, since, truncate(s.Reason, 50))
	}
	return tw.finish()
}

func printCycleReport(w io.Writer, r *apiclient.CycleReport) error {
	tw := newTabWriter(w)
	tw.writef("PARTITION\tFETCHED\tINGESTED\tFAILED\tPRICE CHANGES\tDELETED\tSTATUS\n")
	for _, p := range r.Partitions {
		status := "ok"
		switch {
		case p.Halted:
			status = "halted"
		case p.Error != "":
			status = truncate(p.Error, 40)
		case p.SweepSkipped != "":
			status = "sweep skipped: " + p.SweepSkipped
		}
		tw.writef("%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			p.Partition, p.Fetched, p.Ingested, p.Failed, p.HistoryAppended, p.Deleted, status)
	}
	return tw.finish()
}

func printJobRunsTable(w io.Writer, runs []domain.JobRun) error {
	tw := newTabWriter(w)
	tw.writef("JOB\tSTATUS\tSTARTED\tCOMPLETED\tROWS\tERROR\n")
	for i := range runs {
		r := &runs[i]
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(timeLayout)
		}
		rows := "-"
		if r.RowsAffected != nil {
			rows = fmt.Sprintf("%d", *r.RowsAffected)
		}
		tw.writef("%s\t%s\t%s\t%s\t%s\t%s\n",
			r.JobName,
			r.Status,
			r.StartedAt.Format(timeLayout),
			completed,
			rows,
			truncate(r.ErrorText, 40),
		)
	}
	return tw.finish()
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
