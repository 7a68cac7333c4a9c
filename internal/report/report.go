// Package report renders change batches and store queries as console tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/spreadwatch/internal/models"
	"github.com/rewired-gh/spreadwatch/internal/storage"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func price(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}

func days(d *int) string {
	if d == nil {
		return "-"
	}
	return strconv.Itoa(*d)
}

func decimalPrice(q models.Quote) string {
	if !q.Mid.Valid {
		return "-"
	}
	return q.Mid.Decimal.String()
}

// Changes prints one committed poll's events in batch order.
func Changes(w io.Writer, events []models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tKIND\tSPREAD\tDAYS\tOLD\tNEW\tCHANGE\tFROM")
	for _, e := range events {
		old, change := "-", "-"
		if e.Kind == models.KindChange {
			old = decimalPrice(e.Old)
			change = signed(e.New.Mid.Decimal.Sub(e.Old.Mid.Decimal))
		}
		from := e.Dependency
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("15:04:05"), e.Kind, e.SpreadKey, days(e.DaysBetween),
			old, decimalPrice(e.New), change, from)
	}
	return tw.Flush()
}

// Snapshots prints stored snapshots, one per row.
func Snapshots(w io.Writer, snapshots []models.Snapshot) error {
	if len(snapshots) == 0 {
		_, err := fmt.Fprintln(w, "No snapshots found")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tKIND\tTYPE\tSPREAD\tDAYS\tOLD\tNEW\tCHANGE\tBID\tASK\tFROM")
	for _, s := range snapshots {
		from := s.Dependency
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Timestamp.Format(timeLayout), s.Kind, s.SpreadType, s.SpreadName, days(s.DaysBetween),
			price(s.OldMidpoint), price(s.NewMidpoint), signed(s.Change()),
			price(s.NewBid), price(s.NewAsk), from)
	}
	return tw.Flush()
}

// Stats prints store totals with record ages relative to now.
func Stats(w io.Writer, st storage.Stats, now time.Time) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Total snapshots:\t%s\n", humanize.Comma(int64(st.TotalSnapshots)))
	fmt.Fprintf(tw, "Unique spreads:\t%s\n", humanize.Comma(int64(st.UniqueSpreads)))
	fmt.Fprintf(tw, "Oldest record:\t%s\n", recordAge(st.OldestRecord, now))
	fmt.Fprintf(tw, "Newest record:\t%s\n", recordAge(st.NewestRecord, now))
	return tw.Flush()
}

func recordAge(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", t.Format(timeLayout), humanize.RelTime(*t, now, "ago", "from now"))
}

// Summary prints per-spread aggregates.
func Summary(w io.Writer, rows []storage.SpreadSummary, now time.Time) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No changes in period")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SPREAD\tUPDATES\tAVG CHANGE\tMIN\tMAX\tLAST UPDATE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.SpreadName, r.Updates, strconv.FormatFloat(r.AvgChange, 'f', 4, 64),
			price(r.MinPrice), price(r.MaxPrice),
			humanize.RelTime(r.LastUpdate, now, "ago", "from now"))
	}
	return tw.Flush()
}
