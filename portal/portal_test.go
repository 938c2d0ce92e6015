package portal

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestColorScheme(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value dbus.Variant
		exp   uint32
		ok    bool
	}{
		{"no preference", dbus.MakeVariant(uint32(0)), 0, true},
		{"prefer dark", dbus.MakeVariant(uint32(1)), 1, true},
		{"prefer light", dbus.MakeVariant(uint32(2)), 2, true},
		{"nested", dbus.MakeVariant(dbus.MakeVariant(uint32(1))), 1, true},
		{"too nested", dbus.MakeVariant(dbus.MakeVariant(dbus.MakeVariant(uint32(1)))), 0, false},
		{"wrong type", dbus.MakeVariant("dark"), 0, false},
	} {
		v, ok := colorScheme(tc.value)
		if ok != tc.ok || v != tc.exp {
			t.Errorf("%s: expected %d/%t, got %d/%t", tc.name, tc.exp, tc.ok, v, ok)
		}
	}
}
