package database

import (
	"testing"
	"time"
)

func TestParseMonth_Valid(t *testing.T) {
	got, err := ParseMonth("032025")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseMonth_InvalidLength(t *testing.T) {
	_, err := ParseMonth("32025") // 5 chars
	if err == nil {
		t.Fatal("expected error for invalid length, got nil")
	}
}

func TestParseMonth_InvalidMonth(t *testing.T) {
	_, err := ParseMonth("132025") // 13th month
	if err == nil {
		t.Fatal("expected error for invalid month, got nil")
	}
	if _, err := ParseMonth("0a2025"); err == nil {
		t.Fatal("expected error for non-digit, got nil")
	}
}

func TestPeriod(t *testing.T) {
	from, to, err := Period("112024", "022025")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !from.Equal(time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %v", from)
	}
	if !to.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("to = %v, want exclusive 1st of March", to)
	}
	if _, _, err := Period("032025", "012025"); err == nil {
		t.Fatal("expected error for reversed period, got nil")
	}
}
