package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/spreadwatch/internal/models"
	"github.com/rewired-gh/spreadwatch/internal/storage"
)

func TestQueryCommand(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	now := time.Now()
	err = store.AppendSnapshots(context.Background(), []models.Snapshot{
		{ID: "1", Timestamp: now.Add(-2 * time.Minute), SpreadName: "AHDC-FEB25", Prompt1: "C", Prompt2: "FEB-25",
			Kind: models.KindNew, SpreadType: models.Primary, OldMidpoint: 100, NewMidpoint: 100},
		{ID: "2", Timestamp: now.Add(-time.Minute), SpreadName: "AHDC-FEB25", Prompt1: "C", Prompt2: "FEB-25",
			Kind: models.KindChange, SpreadType: models.Primary, OldMidpoint: 100, NewMidpoint: 100.5},
	})
	if err != nil {
		t.Fatalf("AppendSnapshots failed: %v", err)
	}

	tests := []struct {
		name    string
		command string
		args    []string
		want    string
		wantErr bool
	}{
		{"recent", "recent", nil, "AHDC-FEB25", false},
		{"recent changes only", "recent", []string{"-changes-only"}, "+0.5", false},
		{"history", "history", []string{"-hours", "1", "AHDC-FEB25"}, "CHG", false},
		{"history without spread", "history", nil, "", true},
		{"stats", "stats", nil, "Total snapshots:", false},
		{"moves", "moves", []string{"-top", "1"}, "+0.5", false},
		{"summary", "summary", nil, "AHDC-FEB25", false},
		{"bad flag", "recent", []string{"-nope"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := queryCommand(context.Background(), tt.command, store, tt.args, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("queryCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}
