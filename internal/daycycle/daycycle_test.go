package daycycle

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"00:00", 0},
		{"06:00", 6 * time.Hour},
		{"6:30", 6*time.Hour + 30*time.Minute},
		{" 22:15 ", 22*time.Hour + 15*time.Minute},
		{"23:59:59", 23*time.Hour + 59*time.Minute + 59*time.Second},
		{"12:00:00.25", 12*time.Hour + 250*time.Millisecond},
		{"12:00:00.000000001", 12*time.Hour + 1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got.Duration() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got.Duration(), tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		in      string
		wantErr error
	}{
		{"", ErrInvalidFormat},
		{"noon", ErrInvalidFormat},
		{"6", ErrInvalidFormat},
		{"06:0", ErrInvalidFormat},
		{"24:00", ErrOutOfRange},
		{"12:60", ErrOutOfRange},
		{"12:00:60", ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   TimeOfDay
		want string
	}{
		{Midnight, "00:00"},
		{Hour(7), "07:00"},
		{MustNew(7, 5, 3), "07:05:03"},
		{MustNew(7, 5, 0) + TimeOfDay(500*time.Millisecond), "07:05:00.5"},
		{TimeOfDay(-1), "invalid(-1ns)"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "01:02", "13:14:15", "23:59:59.999999999"} {
		parsed, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := parsed.String(); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestValid(t *testing.T) {
	if !Midnight.Valid() {
		t.Error("midnight should be valid")
	}
	if TimeOfDay(CycleLength).Valid() {
		t.Error("CycleLength itself is outside the half-open cycle")
	}
	if !TimeOfDay(CycleLength - 1).Valid() {
		t.Error("last nanosecond of the day should be valid")
	}
	if TimeOfDay(-time.Nanosecond).Valid() {
		t.Error("negative offsets are invalid")
	}
	if _, err := FromDuration(25 * time.Hour); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("FromDuration(25h) error = %v, want ErrOutOfRange", err)
	}
}

func TestWrapAndUntil(t *testing.T) {
	if got := Wrap(-time.Hour); got != Hour(23) {
		t.Errorf("Wrap(-1h) = %s, want 23:00", got)
	}
	if got := Wrap(26 * time.Hour); got != Hour(2) {
		t.Errorf("Wrap(26h) = %s, want 02:00", got)
	}
	if got := Hour(22).Until(Hour(6)); got != 8*time.Hour {
		t.Errorf("22:00 until 06:00 = %s, want 8h", got)
	}
	if got := Hour(6).Until(Hour(22)); got != 16*time.Hour {
		t.Errorf("06:00 until 22:00 = %s, want 16h", got)
	}
	if got := Hour(6).Until(Hour(6)); got != 0 {
		t.Errorf("06:00 until 06:00 = %s, want 0", got)
	}
}

func TestOf(t *testing.T) {
	loc := time.FixedZone("test", 3*3600)
	ts := time.Date(2024, 3, 10, 7, 30, 15, 42, loc)

	got := Of(ts)
	want := MustNew(7, 30, 15) + 42
	if got != want {
		t.Errorf("Of() = %s, want %s", got, want)
	}
}

func TestYAML(t *testing.T) {
	type doc struct {
		At TimeOfDay `yaml:"at"`
	}

	var d doc
	if err := yaml.Unmarshal([]byte("at: 06:30\n"), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.At != MustNew(6, 30, 0) {
		t.Errorf("at = %s, want 06:30", d.At)
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back doc
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if back.At != d.At {
		t.Errorf("round trip = %s, want %s", back.At, d.At)
	}

	if err := yaml.Unmarshal([]byte("at: 25:00\n"), &d); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("unmarshal 25:00 error = %v, want ErrOutOfRange", err)
	}
}

func TestJSON(t *testing.T) {
	out, err := json.Marshal(map[string]TimeOfDay{"at": Hour(8)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"at":"08:00"}` {
		t.Errorf("marshal = %s", out)
	}

	var back map[string]TimeOfDay
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["at"] != Hour(8) {
		t.Errorf("at = %s, want 08:00", back["at"])
	}
}
