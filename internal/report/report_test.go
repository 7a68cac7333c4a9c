package report

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/spreadwatch/internal/models"
	"github.com/rewired-gh/spreadwatch/internal/storage"
)

func TestChanges(t *testing.T) {
	d := 47
	ts := time.Date(2025, 1, 6, 9, 30, 15, 0, time.UTC)
	events := []models.ChangeEvent{
		{Timestamp: ts, SpreadKey: "AHDC-FEB25", Kind: models.KindNew,
			New: models.Quote{Mid: models.Price(100)}, DaysBetween: &d},
		{Timestamp: ts, SpreadKey: "AHDFEB25-MAR25", Kind: models.KindChange,
			Old: models.Quote{Mid: models.Price(5.5)}, New: models.Quote{Mid: models.Price(5.25)},
			Dependency: "AHDC-FEB25"},
	}

	var buf bytes.Buffer
	if err := Changes(&buf, events); err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), buf.String())
	}
	if got := strings.Fields(lines[1]); strings.Join(got, " ") != "09:30:15 NEW AHDC-FEB25 47 - 100 - -" {
		t.Errorf("NEW row = %q", lines[1])
	}
	if got := strings.Fields(lines[2]); strings.Join(got, " ") != "09:30:15 CHG AHDFEB25-MAR25 - 5.5 5.25 -0.25 AHDC-FEB25" {
		t.Errorf("CHG row = %q", lines[2])
	}

	buf.Reset()
	if err := Changes(&buf, nil); err != nil || buf.Len() != 0 {
		t.Errorf("empty batch wrote %q, err %v", buf.String(), err)
	}
}

func TestSnapshots(t *testing.T) {
	var buf bytes.Buffer
	if err := Snapshots(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No snapshots found") {
		t.Errorf("unexpected empty output: %q", buf.String())
	}

	buf.Reset()
	snaps := []models.Snapshot{{
		Timestamp:   time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC),
		SpreadName:  "AHDC-FEB25",
		Kind:        models.KindChange,
		SpreadType:  models.Primary,
		OldMidpoint: 100,
		NewMidpoint: 100.5,
		NewBid:      100.4,
		NewAsk:      100.6,
	}}
	if err := Snapshots(&buf, snaps); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"AHDC-FEB25", "PRIMARY", "+0.5", "100.4", "2025-01-06 09:30:00"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
	buf.Reset()
	snaps[0].NewMidpoint = 100.02
	if err := Snapshots(&buf, snaps); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "+0.02 ") {
		t.Errorf("expected exact +0.02 change:\n%s", buf.String())
	}
}

func TestStats(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-3 * time.Hour)
	newest := now.Add(-5 * time.Minute)

	var buf bytes.Buffer
	err := Stats(&buf, storage.Stats{
		TotalSnapshots: 12345,
		UniqueSpreads:  42,
		OldestRecord:   &oldest,
		NewestRecord:   &newest,
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"12,345", "42", "3 hours ago", "5 minutes ago"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := Stats(&buf, storage.Stats{}, now); err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`Oldest record:\s+-\n`).MatchString(buf.String()) {
		t.Errorf("empty store should show '-':\n%s", buf.String())
	}
}

func TestSummary(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := Summary(&buf, []storage.SpreadSummary{{
		SpreadName: "AHDC-FEB25",
		Updates:    3,
		AvgChange:  1.0 / 3,
		MinPrice:   100,
		MaxPrice:   102,
		LastUpdate: now.Add(-time.Minute * 10),
	}}, now)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"AHDC-FEB25", "0.3333", "102", "10 minutes ago"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
