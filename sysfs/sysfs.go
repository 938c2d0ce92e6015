// Package sysfs controls display color calibration using the kcal interface
// exposed by the msm mdp display driver.
package sysfs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/calproto"
)

// DefaultPath is the kcal control file on the devices this was written for.
const DefaultPath = "/sys/devices/platform/mdp.458753/kcal"

// Root is the sysfs mountpoint used by Find.
var Root = "/sys"

// ErrNotFound is returned by Find if no kcal control file exists.
var ErrNotFound = errors.New("kcal control file not found")

// File is a kcal control file.
type File struct {
	Path string
}

var _ kcal.Hardware = File{}

// Read reads the active calibration from the first line of the file.
func (f File) Read() (calproto.Vector, error) {
	fp, err := os.Open(f.Path)
	if err != nil {
		return calproto.Vector{}, err
	}
	defer fp.Close()

	sc := bufio.NewScanner(fp)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return calproto.Vector{}, fmt.Errorf("read %s: %w", f.Path, err)
		}
		return calproto.Vector{}, fmt.Errorf("read %s: %w", f.Path, calproto.ErrMalformed)
	}
	v, err := calproto.Parse(sc.Text())
	if err != nil {
		return calproto.Vector{}, fmt.Errorf("read %s: %w", f.Path, err)
	}
	return v, nil
}

// Write writes a calibration in a single write so the driver never sees a
// partial vector.
func (f File) Write(v calproto.Vector) error {
	fp, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	b, _ := v.AppendText(make([]byte, 0, len("255 255 255\n")))
	if _, err := fp.Write(append(b, '\n')); err != nil {
		fp.Close()
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	return fp.Close()
}

// Find finds a kcal control file exposed by a platform device.
func Find() (string, error) {
	ms, err := filepath.Glob(filepath.Join(Root, "devices", "platform", "*", "kcal"))
	if err != nil {
		return "", err
	}
	if len(ms) == 0 {
		return "", ErrNotFound
	}
	sort.Strings(ms)
	return ms[0], nil
}
