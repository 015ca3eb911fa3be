package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAmountUnmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want Amount
	}{
		{`1500`, 1500},
		{`1500.25`, 1500.25},
		{`"1500.00"`, 1500},
		{`"1,500.00"`, 1500},
		{`" 42 "`, 42},
		{`null`, 0},
		{`""`, 0},
		{`"-12.5"`, -12.5},
	}
	for _, tt := range tests {
		var a Amount
		if err := json.Unmarshal([]byte(tt.raw), &a); err != nil {
			t.Errorf("Unmarshal(%s): %v", tt.raw, err)
			continue
		}
		if a != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.raw, a, tt.want)
		}
	}
}

func TestAmountUnmarshalRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"lots"`, `true`, `{}`} {
		var a Amount
		err := json.Unmarshal([]byte(raw), &a)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Unmarshal(%s) error = %v, want ErrInvalidAmount", raw, err)
		}
	}
}

func TestAmountInStructRoundTrip(t *testing.T) {
	var in struct {
		Cost Amount `json:"cost"`
		Qty  Amount `json:"qty"`
	}
	if err := json.Unmarshal([]byte(`{"cost":"1,500.00","qty":null}`), &in); err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(out), `{"cost":1500,"qty":0}`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestDateRoundTrip(t *testing.T) {
	tests := []struct {
		raw        string
		wantString string
		wantJSON   string
	}{
		{`"2024-01-15"`, "2024-01-15", `"2024-01-15"`},
		{`"2024-01-15T00:00:00Z"`, "2024-01-15", `"2024-01-15"`},
		{`"2024-01-15T09:30:00Z"`, "2024-01-15T09:30:00Z", `"2024-01-15T09:30:00Z"`},
		{`"2024-01-15T09:30:00.5+05:30"`, "2024-01-15T09:30:00.5+05:30", `"2024-01-15T09:30:00.5+05:30"`},
		{`null`, "", `null`},
		{`""`, "", `null`},
	}
	for _, tt := range tests {
		var d Date
		if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
			t.Errorf("Unmarshal(%s): %v", tt.raw, err)
			continue
		}
		if got := d.String(); got != tt.wantString {
			t.Errorf("Unmarshal(%s).String() = %q, want %q", tt.raw, got, tt.wantString)
		}
		out, err := json.Marshal(d)
		if err != nil {
			t.Errorf("Marshal(%s): %v", tt.raw, err)
			continue
		}
		if string(out) != tt.wantJSON {
			t.Errorf("Marshal(%s) = %s, want %s", tt.raw, out, tt.wantJSON)
		}

		var back Date
		if err := json.Unmarshal(out, &back); err != nil {
			t.Errorf("re-Unmarshal(%s): %v", out, err)
			continue
		}
		if !back.Equal(d) {
			t.Errorf("round trip of %s changed the instant: %v != %v", tt.raw, back.Time, d.Time)
		}
	}
}

func TestDateOnlyIsMidnightUTC(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !d.Time.Equal(want) || d.Location() != time.UTC {
		t.Errorf("ParseDate(2024-03-01) = %v, want %v", d.Time, want)
	}
}

func TestDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"next tuesday"`, `20240115`} {
		var d Date
		if err := json.Unmarshal([]byte(raw), &d); err == nil {
			t.Errorf("Unmarshal(%s) accepted %v", raw, d.Time)
		}
	}
}
