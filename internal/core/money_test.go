package core

import "testing"

func TestParseDecimalToKopecks(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"81", 8100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"12.345", 1235, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToKopecks(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		m    Money
		want string
	}{
		{Rubles(546), "546 ₽"},
		{Rubles(0), "0 ₽"},
		{Money{Kopecks: 34667}, "346.67 ₽"},
		{Money{Kopecks: 8150}, "81.50 ₽"},
	}
	for _, tc := range cases {
		if got := tc.m.String(); got != tc.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tc.m.Kopecks, got, tc.want)
		}
	}
}

func TestAverageTicket(t *testing.T) {
	cases := []struct {
		name    string
		revenue Money
		count   int64
		want    int64
	}{
		{"zero count", Rubles(1040), 0, 0},
		{"exact", Rubles(546), 2, 27300},
		{"rounded up", Rubles(1040), 3, 34667},
		{"rounded down", Rubles(100), 3, 3333},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AverageTicket(tc.revenue, tc.count)
			if got.Kopecks != tc.want {
				t.Errorf("AverageTicket(%v, %d) = %d, want %d", tc.revenue, tc.count, got.Kopecks, tc.want)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := Money{Kopecks: 34667}.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(b) != "346.67" {
		t.Fatalf("MarshalJSON() = %s, want 346.67", b)
	}

	var m Money
	if err := m.UnmarshalJSON([]byte(`"81,5"`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if m.Kopecks != 8150 {
		t.Fatalf("UnmarshalJSON() kopecks = %d, want 8150", m.Kopecks)
	}
}
