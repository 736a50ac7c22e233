package inspect

import (
	"testing"
	"time"
)

func TestFormatValue(t *testing.T) {
	ts := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "NULL"},
		{[]byte("bytes"), "bytes"},
		{ts, "2010-12-01 08:26:00"},
		{float64(2.5500), "2.55"},
		{float64(3), "3"},
		{int64(42), "42"},
		{"text", "text"},
		{true, "true"},
	}
	for _, tc := range tests {
		if got := formatValue(tc.in); got != tc.want {
			t.Errorf("formatValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEscapePath(t *testing.T) {
	if got := escapePath("it's.parquet"); got != "it''s.parquet" {
		t.Errorf("escapePath = %q", got)
	}
	if got := escapePath("plain.parquet"); got != "plain.parquet" {
		t.Errorf("escapePath = %q", got)
	}
}
