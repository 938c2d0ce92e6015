package calproto

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Vector
		err bool
	}{
		{"255 255 255", Vector{255, 255, 255}, false},
		{"0 0 0", Vector{0, 0, 0}, false},
		{"200 150 100\n", Vector{200, 150, 100}, false},
		{"  1 2 3  ", Vector{1, 2, 3}, false},
		{"1  2 3", Vector{1, 2, 3}, false},
		{"", Vector{}, true},
		{"255 255", Vector{}, true},
		{"255 255 255 255", Vector{}, true},
		{"256 0 0", Vector{}, true},
		{"-1 0 0", Vector{}, true},
		{"+1 0 0", Vector{}, true},
		{"a b c", Vector{}, true},
		{"1.5 2 3", Vector{}, true},
	} {
		v, err := Parse(tc.in)
		if tc.err {
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("parse %q: expected ErrMalformed, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parse %q: unexpected error: %v", tc.in, err)
			continue
		}
		if v != tc.out {
			t.Errorf("parse %q: expected %v, got %v", tc.in, tc.out, v)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"255 255 255", "0 0 0", "200 150 100", "1 22 255"} {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if v.String() != s {
			t.Errorf("encode(decode(%q)) = %q", s, v.String())
		}
	}
	for _, v := range []Vector{Default, {}, {1, 2, 3}, {255, 0, 128}} {
		x, err := Parse(v.String())
		if err != nil {
			t.Fatalf("parse %q: %v", v.String(), err)
		}
		if x != v {
			t.Errorf("decode(encode(%v)) = %v", v, x)
		}
	}
}

func TestText(t *testing.T) {
	var v Vector
	if err := v.UnmarshalText([]byte("10 20 30")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, _ := v.MarshalText(); string(b) != "10 20 30" {
		t.Errorf("unexpected text %q", b)
	}
	if b, _ := v.AppendText([]byte("kcal=")); string(b) != "kcal=10 20 30" {
		t.Errorf("unexpected text %q", b)
	}
	if err := v.UnmarshalText([]byte("nope")); err == nil {
		t.Errorf("expected error")
	} else if v != (Vector{10, 20, 30}) {
		t.Errorf("vector modified on error: %v", v)
	}
}

func TestWith(t *testing.T) {
	v := Vector{200, 200, 200}
	if x := v.With(0, 150); x != (Vector{150, 200, 200}) {
		t.Errorf("unexpected %v", x)
	}
	if x := v.With(2, 300); x != (Vector{200, 200, 255}) {
		t.Errorf("expected clamp to max, got %v", x)
	}
	if x := v.With(1, -5); x != (Vector{200, 0, 200}) {
		t.Errorf("expected clamp to min, got %v", x)
	}
	if v != (Vector{200, 200, 200}) {
		t.Errorf("original modified: %v", v)
	}
}

func TestPercent(t *testing.T) {
	v := Vector{255, 0, 128}
	for ch, exp := range []int{100, 0, 50} {
		if p := v.Percent(ch); p != exp {
			t.Errorf("channel %d: expected %d%%, got %d%%", ch, exp, p)
		}
	}
}

func TestProfile(t *testing.T) {
	if ProfileOf(true) != Day || ProfileOf(false) != Night {
		t.Errorf("wrong profile for mode")
	}
	for _, p := range []Profile{Day, Night} {
		x, err := ParseProfile(p.String())
		if err != nil || x != p {
			t.Errorf("parse %q: got %v, %v", p.String(), x, err)
		}
	}
	if _, err := ParseProfile("dusk"); err == nil {
		t.Errorf("expected error for unknown profile")
	}
	if Profile(7).Valid() {
		t.Errorf("expected invalid profile")
	}
}
