// Package monitor turns live spreadsheet readings into confirmed, persisted spread changes.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/spreadwatch/internal/calendar"
	"github.com/rewired-gh/spreadwatch/internal/logger"
	"github.com/rewired-gh/spreadwatch/internal/metrics"
	"github.com/rewired-gh/spreadwatch/internal/models"
	"github.com/rewired-gh/spreadwatch/internal/sheet"
	"github.com/rewired-gh/spreadwatch/internal/spread"
)

// ErrSourceDisconnected is returned when a poll is skipped because the source went away.
var ErrSourceDisconnected = errors.New("source disconnected")

// Store persists one poll's snapshots atomically.
type Store interface {
	AppendSnapshots(ctx context.Context, snapshots []models.Snapshot) error
}

// Connector opens a fresh source. It is called on the first poll and after every disconnect.
type Connector func(ctx context.Context) (sheet.Source, error)

// Section describes one block of spread rows in the capture sheet.
type Section struct {
	Name         string
	Leg1Col      string
	Leg2Col      string
	MidCol       string
	BidCol       string
	AskCol       string
	BidVolumeCol string
	AskVolumeCol string
	FirstRow     int
	LastRow      int
	// Primary marks rows [PrimaryFirstRow, PrimaryLastRow] as primary spreads.
	// Zero bounds mean the whole section.
	Primary         bool
	PrimaryFirstRow int
	PrimaryLastRow  int
}

func (s Section) isPrimaryRow(row int) bool {
	if !s.Primary {
		return false
	}
	if s.PrimaryFirstRow > 0 && row < s.PrimaryFirstRow {
		return false
	}
	if s.PrimaryLastRow > 0 && row > s.PrimaryLastRow {
		return false
	}
	return true
}

type Config struct {
	Sheet              string
	ReferenceSheet     string
	PrefixCell         string
	FallbackPrefix     string
	CashDateCell       string
	ThreeMonthDateCell string
	PollInterval       time.Duration
	StabilityDuration  time.Duration
	MinChange          decimal.Decimal
	StaleAfter         time.Duration
	Sections           []Section
}

// PollResult summarizes one Capture call. Events are sorted and already committed.
type PollResult struct {
	Events     []models.ChangeEvent
	Rows       int
	Rejected   int
	Duplicates int
	Tracked    int
}

// Monitor owns the price tracker for one monitoring session.
type Monitor struct {
	connect  Connector
	source   sheet.Source
	store    Store
	calendar *calendar.Service
	metrics  *metrics.Metrics
	tracker  *Tracker
	config   Config
	prefix   string
	now      func() time.Time
}

// New creates a monitor. met may be nil.
func New(connect Connector, store Store, cal *calendar.Service, met *metrics.Metrics, config Config) *Monitor {
	if config.FallbackPrefix == "" {
		config.FallbackPrefix = "AHD"
	}
	return &Monitor{
		connect:  connect,
		store:    store,
		calendar: cal,
		metrics:  met,
		tracker:  NewTracker(),
		config:   config,
		now:      time.Now,
	}
}

// Tracked returns the number of live price points.
func (m *Monitor) Tracked() int {
	return m.tracker.Len()
}

// Prefix returns the instrument prefix in use, or "" before the first connection.
func (m *Monitor) Prefix() string {
	return m.prefix
}

// Close releases the current source connection, if any.
func (m *Monitor) Close() error {
	if m.source == nil {
		return nil
	}
	err := m.source.Close()
	m.source = nil
	return err
}

// pending is a point whose event is waiting on the batch commit.
type pending struct {
	point *PricePoint
	event models.ChangeEvent
}

type rowCells struct {
	leg1, leg2, mid      sheet.Value
	bid, ask             sheet.Value
	bidVolume, askVolume sheet.Value
}

// Capture runs one poll: read every section, debounce, and commit confirmed
// changes in a single transaction. Baselines advance only after the commit.
func (m *Monitor) Capture(ctx context.Context) (PollResult, error) {
	started := time.Now()
	var result PollResult

	if err := ctx.Err(); err != nil {
		return result, err
	}

	src, err := m.ensureSource(ctx)
	if err != nil {
		m.metrics.ObservePoll(metrics.ResultDisconnected, time.Since(started))
		return result, err
	}

	m.refreshReferenceDates(src)

	now := m.now()
	seen := make(map[string]struct{})
	var batch []pending
	for _, sec := range m.config.Sections {
		batch = m.captureSection(src, sec, now, seen, batch, &result)
	}

	if evicted := m.tracker.EvictStale(now, m.config.StaleAfter); evicted > 0 {
		logger.Debug("Evicted %d stale spreads", evicted)
	}
	result.Tracked = m.tracker.Len()
	m.metrics.SetTracked(result.Tracked)

	if len(batch) == 0 {
		m.metrics.ObservePoll(metrics.ResultOK, time.Since(started))
		return result, nil
	}

	snapshots := make([]models.Snapshot, len(batch))
	for i, p := range batch {
		snapshots[i] = p.event.ToSnapshot(uuid.New().String())
	}

	// The transaction must finish even if shutdown starts mid-poll.
	if err := m.store.AppendSnapshots(context.WithoutCancel(ctx), snapshots); err != nil {
		for _, p := range batch {
			p.point.Rearm()
		}
		m.metrics.PersistFailed()
		m.metrics.ObservePoll(metrics.ResultPersistError, time.Since(started))
		return result, fmt.Errorf("failed to persist %d snapshots: %w", len(snapshots), err)
	}

	events := make([]models.ChangeEvent, len(batch))
	for i, p := range batch {
		p.point.MarkRecorded()
		events[i] = p.event
	}
	SortEvents(events)
	result.Events = events

	m.metrics.EventsCommitted(events)
	m.metrics.ObservePoll(metrics.ResultOK, time.Since(started))
	return result, nil
}

func (m *Monitor) ensureSource(ctx context.Context) (sheet.Source, error) {
	if m.source == nil {
		src, err := m.connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceDisconnected, err)
		}
		m.source = src
		if m.prefix == "" {
			m.prefix = m.readPrefix(src)
		}
		logger.Info("Connected to source (prefix %s)", m.prefix)
		return src, nil
	}

	if err := m.source.Refresh(ctx); err != nil {
		logger.Warn("Source refresh failed, reconnecting next poll: %v", err)
		_ = m.source.Close()
		m.source = nil
		return nil, fmt.Errorf("%w: %v", ErrSourceDisconnected, err)
	}
	return m.source, nil
}

func (m *Monitor) readPrefix(src sheet.Source) string {
	if m.config.PrefixCell != "" {
		v := src.ReadCell(m.config.Sheet, m.config.PrefixCell)
		if prefix := spread.NormalizeLeg(v); prefix != "" {
			return prefix
		}
	}
	logger.Warn("Could not read instrument prefix from %s!%s, using %s",
		m.config.Sheet, m.config.PrefixCell, m.config.FallbackPrefix)
	return m.config.FallbackPrefix
}

func (m *Monitor) refreshReferenceDates(src sheet.Source) {
	if m.config.ReferenceSheet == "" {
		return
	}
	var cash, threeMonth time.Time
	if m.config.CashDateCell != "" {
		if v := src.ReadCell(m.config.ReferenceSheet, m.config.CashDateCell); v.Kind == sheet.Date {
			cash = v.Time
		}
	}
	if m.config.ThreeMonthDateCell != "" {
		if v := src.ReadCell(m.config.ReferenceSheet, m.config.ThreeMonthDateCell); v.Kind == sheet.Date {
			threeMonth = v.Time
		}
	}
	m.calendar.SetReferenceDates(cash, threeMonth)
}

func (m *Monitor) readColumn(src sheet.Source, col string, sec Section) []sheet.Value {
	if col == "" {
		return nil
	}
	rows := sec.LastRow - sec.FirstRow + 1
	out := make([]sheet.Value, rows)
	start, err := sheet.CellName(col, sec.FirstRow)
	if err != nil {
		logger.Warn("Bad column %q in section %s: %v", col, sec.Name, err)
		return out
	}
	grid := src.ReadRange(m.config.Sheet, start, rows, 1)
	for i := range out {
		if i < len(grid) && len(grid[i]) > 0 {
			out[i] = grid[i][0]
		}
	}
	return out
}

func (m *Monitor) captureSection(src sheet.Source, sec Section, now time.Time,
	seen map[string]struct{}, batch []pending, result *PollResult) []pending {
	if sec.LastRow < sec.FirstRow {
		return batch
	}

	leg1 := m.readColumn(src, sec.Leg1Col, sec)
	leg2 := m.readColumn(src, sec.Leg2Col, sec)
	mid := m.readColumn(src, sec.MidCol, sec)
	bid := m.readColumn(src, sec.BidCol, sec)
	ask := m.readColumn(src, sec.AskCol, sec)
	bidVol := m.readColumn(src, sec.BidVolumeCol, sec)
	askVol := m.readColumn(src, sec.AskVolumeCol, sec)

	at := func(col []sheet.Value, i int) sheet.Value {
		if col == nil {
			return sheet.Value{}
		}
		return col[i]
	}

	for i := 0; i <= sec.LastRow-sec.FirstRow; i++ {
		cells := rowCells{
			leg1: at(leg1, i), leg2: at(leg2, i), mid: at(mid, i),
			bid: at(bid, i), ask: at(ask, i),
			bidVolume: at(bidVol, i), askVolume: at(askVol, i),
		}
		if cells.leg1.IsEmpty() && cells.leg2.IsEmpty() && cells.mid.IsEmpty() {
			continue
		}
		result.Rows++

		row := sec.FirstRow + i
		p, ok := m.captureRow(sec, row, cells, now, seen, result)
		if ok {
			batch = append(batch, p)
		}
	}
	return batch
}

func (m *Monitor) captureRow(sec Section, row int, cells rowCells, now time.Time,
	seen map[string]struct{}, result *PollResult) (pending, bool) {
	parsed, err := spread.Parse(cells.leg1, cells.leg2, cells.mid)
	if err != nil {
		result.Rejected++
		m.metrics.RowRejected(spread.Reason(err))
		logger.Debug("Skipping %s row %d: %v", sec.Name, row, err)
		return pending{}, false
	}

	key := spread.FormatName(m.prefix, parsed.Leg1, parsed.Leg2)
	if _, dup := seen[key]; dup {
		result.Duplicates++
		m.metrics.DuplicateRow()
		logger.Debug("Skipping duplicate %s in %s row %d", key, sec.Name, row)
		return pending{}, false
	}
	seen[key] = struct{}{}

	quote := models.Quote{
		Mid: decimal.NewNullDecimal(parsed.Mid),
		Bid: spread.OptionalPrice(cells.bid),
		Ask: spread.OptionalPrice(cells.ask),
	}

	var days *int
	if d, ok := m.calendar.DaysBetween(parsed.Leg1, parsed.Leg2); ok {
		days = &d
	}

	primary := sec.isPrimaryRow(row)
	spreadType := models.Derived
	dependency := ""
	if primary {
		spreadType = models.Primary
	} else {
		dependency = m.attribute(now)
	}

	event := models.ChangeEvent{
		Timestamp:   now,
		SpreadKey:   key,
		Leg1:        parsed.Leg1,
		Leg2:        parsed.Leg2,
		New:         quote,
		BidVolume:   spread.OptionalPrice(cells.bidVolume),
		AskVolume:   spread.OptionalPrice(cells.askVolume),
		DaysBetween: days,
		SpreadType:  spreadType,
	}

	point, exists := m.tracker.Get(key)
	if !exists {
		point = m.tracker.Add(NewPricePoint(key, quote, now, primary))
		point.Dependency = dependency
		if parsed.Mid.IsZero() {
			return pending{}, false
		}
		point.Pending = true
		event.Kind = models.KindNew
		event.Dependency = point.Dependency
		return pending{point: point, event: event}, true
	}

	shouldEmit, baseline := point.Update(quote, now, dependency, m.rules())
	if !shouldEmit || parsed.Mid.IsZero() {
		return pending{}, false
	}

	// CHG compares the whole quote: a bid or ask move of at least MinChange
	// qualifies even when the mid is unchanged.
	if point.HasBaseline() {
		if !quote.Differs(baseline, m.config.MinChange) {
			point.Acknowledge()
			return pending{}, false
		}
		event.Kind = models.KindChange
		event.Old = baseline
	} else {
		event.Kind = models.KindNew
	}
	event.Dependency = point.Dependency
	return pending{point: point, event: event}, true
}

func (m *Monitor) rules() Rules {
	return Rules{MinChange: m.config.MinChange, StabilityDuration: m.config.StabilityDuration}
}

// SortEvents orders events by days between legs (missing last), then spread key.
func SortEvents(events []models.ChangeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].DaysBetween, events[j].DaysBetween
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return events[i].SpreadKey < events[j].SpreadKey
	})
}
