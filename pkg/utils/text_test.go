package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if Truncate("ñandú rojo", 5) != "ñandú..." {
		t.Errorf("multibyte: got %s", Truncate("ñandú rojo", 5))
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"}, {5.9, "0:05"}, {65.4, "1:05"}, {600, "10:00"}, {-3, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.in); got != tt.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(0.874); got != "87%" {
		t.Errorf("got %s", got)
	}
	if got := Percent(1); got != "100%" {
		t.Errorf("got %s", got)
	}
}
