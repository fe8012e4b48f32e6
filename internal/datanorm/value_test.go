package datanorm

import "testing"

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"01/15/2024", "2024-01-15", true},
		{"1/5/2024", "2024-01-05", true},
		{"01/15/24", "2024-01-15", true},
		{"2024-01-15", "2024-01-15", true},
		{"2024-1-5", "2024-01-05", true},
		{"25/12/2024", "2024-12-25", true},
		{" 12/31/2023 ", "2023-12-31", true},
		{"", "", false},
		{"yesterday", "yesterday", false},
		{"2024/13/45", "2024/13/45", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseDate(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"12,345", 12345, true},
		{"42", 42, true},
		{" 1,000,000 ", 1000000, true},
		{"7.0", 7, true},
		{"", 0, true},
		{"abc", 0, false},
		{"1.5", 0, false},
		{"1e3", 1000, true},
		{"1e30", 0, false},
		{"-1e19", 0, false},
		{"Inf", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseInt(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseInt(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseMicros(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"$1,234.56", 1234560000, true},
		{"0.000001", 1, true},
		{"0.0000005", 1, true},
		{"12", 12000000, true},
		{"-3.5", -3500000, true},
		{"", 0, true},
		{"n/a", 0, false},
		{"9223372036854.775807", 9223372036854775807, true},
		{"$10,000,000,000,000", 0, false},
		{"-1e20", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMicros(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseMicros(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseBool(t *testing.T) {
	for _, in := range []string{"true", "Yes", "1", " TRUE "} {
		if !ParseBool(in) {
			t.Errorf("ParseBool(%q) = false", in)
		}
	}
	for _, in := range []string{"", "false", "no", "0", "maybe"} {
		if ParseBool(in) {
			t.Errorf("ParseBool(%q) = true", in)
		}
	}
}

func TestRateAndPercent(t *testing.T) {
	if got := Rate(1, 4); got != 0.25 {
		t.Errorf("Rate(1, 4) = %v", got)
	}
	if got := Rate(5, 0); got != 0 {
		t.Errorf("Rate(5, 0) = %v, want 0", got)
	}
	if got := Percent(1, 3); got != 33.33 {
		t.Errorf("Percent(1, 3) = %v, want 33.33", got)
	}
	if got := Percent(10, 0); got != 0 {
		t.Errorf("Percent(10, 0) = %v, want 0", got)
	}
}
