package model

import "testing"

func TestMoneyDelta(t *testing.T) {
	tests := []struct {
		next, prev, want float64
	}{
		{49.99, 45.00, 4.99},
		{0.3, 0.1, 0.2},
		{10, 12.5, -2.5},
	}
	for _, tt := range tests {
		if got := MoneyDelta(tt.next, tt.prev); got != tt.want {
			t.Errorf("MoneyDelta(%v, %v) = %v, want %v", tt.next, tt.prev, got, tt.want)
		}
	}
}

func TestMoneyTimes(t *testing.T) {
	if got := MoneyTimes(3, 1.1); got != 3.3 {
		t.Errorf("MoneyTimes(3, 1.1) = %v, want 3.3", got)
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{"12.50", 12.5, true},
		{"12,50", 12.5, true},
		{" 7 ", 7, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMoney(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseMoney(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(49.9); got != "49.90" {
		t.Errorf("FormatMoney(49.9) = %q, want 49.90", got)
	}
}
