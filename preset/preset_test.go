package preset

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pgaskin/kcal/calproto"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Len() < 2 {
		t.Fatalf("expected built-in presets, got %d entries", c.Len())
	}
	if e, _ := c.At(None); e.Name != "Custom" {
		t.Errorf("unexpected sentinel name %q", e.Name)
	}
	if i := c.IndexOf(calproto.Default); i == None {
		t.Errorf("expected the neutral vector to be a preset")
	}
	if e, _ := c.At(c.IndexOf(calproto.Vector{245, 222, 179})); e.Name != "Reading" {
		t.Errorf("expected named color preset to resolve, got %q", e.Name)
	}
}

func TestLoad(t *testing.T) {
	c, err := Load(strings.NewReader(`
custom: "-"
presets:
  - name: A
    vector: 180 180 180
  - name: B
    vector: 10 20 30
  - name: C
    vector: "180 180 180"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"-", "A", "B", "C"}, c.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	for _, tc := range []struct {
		v calproto.Vector
		i int
	}{
		{calproto.Vector{180, 180, 180}, 1}, // first match wins
		{calproto.Vector{10, 20, 30}, 2},
		{calproto.Vector{10, 20, 31}, None},
		{calproto.Vector{}, None},
	} {
		if i := c.IndexOf(tc.v); i != tc.i {
			t.Errorf("index of %v: expected %d, got %d", tc.v, tc.i, i)
		}
	}
	if _, ok := c.At(4); ok {
		t.Errorf("expected out of range")
	}
	if _, ok := c.At(-1); ok {
		t.Errorf("expected out of range")
	}
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected only the sentinel, got %d entries", c.Len())
	}
	if c.IndexOf(calproto.Default) != None {
		t.Errorf("sentinel must never match")
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, tc := range []string{
		"presets: [{name: A, vector: 1 2}]",
		"presets: [{name: A, vector: 1 2 3, color: red}]",
		"presets: [{name: A, color: notacolor}]",
		"presets: [{name: A}]",
		"presets: [{vector: 1 2 3}]",
		"presets: nope",
	} {
		if _, err := Load(strings.NewReader(tc)); err == nil {
			t.Errorf("%q: expected error", tc)
		}
	}
}
