package ddc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysClassDRM is where DRM connectors are found.
var SysClassDRM = "/sys/class/drm"

// ErrMonitorNotFound is returned by FindMonitor.
var ErrMonitorNotFound = errors.New("monitor not found")

// FindMonitor finds a DRM card name by the monitor's EDID's PNP ID and serial
// (e.g., ACRE70C-A55C5042).
func FindMonitor(id string) (string, error) {
	cfs, err := os.ReadDir(SysClassDRM)
	if err != nil {
		return "", fmt.Errorf("list drm nodes: %w", err)
	}
	for _, cf := range cfs {
		if !strings.HasPrefix(cf.Name(), "card") {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(SysClassDRM, cf.Name(), "edid"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("read %s edid: %w", cf.Name(), err)
		}
		if s, ok := EDIDID(buf); ok && s == id {
			return cf.Name(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMonitorNotFound, id)
}

// EDIDID formats the PNP vendor, product code, and serial from an EDID.
func EDIDID(edid []byte) (string, bool) {
	// https://en.wikipedia.org/wiki/Extended_Display_Identification_Data
	const hex = "0123456789ABCDEF"
	if len(edid) < 16 || !bytes.HasPrefix(edid, []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}) {
		return "", false
	}
	var (
		vnd = binary.BigEndian.Uint16(edid[8:10])
		prd = edid[10:12]
		ser = edid[12:16]
		b   = make([]byte, 0, 16)
	)
	for i := 2; i >= 0; i-- {
		b = append(b, 'A'-1+byte(0b11111&(vnd>>(5*i))))
	}
	for _, c := range prd {
		b = append(b, hex[c>>4], hex[c&0xF])
	}
	b = append(b, '-')
	for _, c := range ser {
		b = append(b, hex[c>>4], hex[c&0xF])
	}
	return string(b), true
}

// FindI2C finds I2C devices exposed on a DRM card.
func FindI2C(card string) ([]int, error) {
	// https://www.kernel.org/doc/Documentation/i2c/dev-interface
	cfs, err := os.ReadDir(filepath.Join(SysClassDRM, card))
	if err != nil {
		return nil, err
	}
	var i2cs []int
	for _, x := range cfs {
		if s, ok := strings.CutPrefix(x.Name(), "i2c-"); ok {
			if n, err := strconv.ParseInt(s, 10, 0); err == nil {
				i2cs = append(i2cs, int(n))
			}
		}
	}
	return i2cs, nil
}

// OpenMonitor finds and opens the DDC-CI bus for a monitor.
func OpenMonitor(id string) (*CI, error) {
	card, err := FindMonitor(id)
	if err != nil {
		return nil, err
	}
	i2cs, err := FindI2C(card)
	if err == nil && len(i2cs) != 1 {
		err = fmt.Errorf("expected exactly 1 bus, got %d", len(i2cs))
	}
	if err != nil {
		return nil, fmt.Errorf("find ddc i2c bus: %w", err)
	}
	return Open(i2cs[0])
}
