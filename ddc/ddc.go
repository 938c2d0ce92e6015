// Package ddc provides utilities for setting VCPs on DDC-CI capable monitors.
package ddc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"
	"time"
)

const (
	_IOCTL_I2C_SLAVE = 0x0703
	_I2C_ADDR_DDC_CI = 0x37
	_I2C_ADDR_HOST   = 0x51
)

// Some widely-supported VCPs.
const (
	VCP_Brightness = 0x10
	VCP_Contrast   = 0x12
	VCP_GainRed    = 0x16
	VCP_GainGreen  = 0x18
	VCP_GainBlue   = 0x1A
)

// Some errors.
var (
	ErrDeviceGone     = syscall.Errno(syscall.EREMOTEIO)
	ErrChecksum       = errors.New("invalid ddc checksum")
	ErrBadReply       = errors.New("bad ddc reply")
	ErrNoReply        = errors.New("no ddc reply")
	ErrUnsupportedVCP = errors.New("unsupported ddc vcp code")
)

// CI is an open connection to an I2C bus with a DDC-CI slave.
type CI struct {
	rw   io.ReadWriteCloser
	next time.Time
}

// Open opens a DDC-CI I2C bus.
func Open(i2c int) (*CI, error) {
	f, err := os.OpenFile("/dev/i2c-"+strconv.Itoa(i2c), os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), _IOCTL_I2C_SLAVE, _I2C_ADDR_DDC_CI); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("failed to open address 0x%X on i2c bus %d: %w", _I2C_ADDR_DDC_CI, i2c, syscall.Errno(errno))
	}
	return New(f), nil
}

// New uses an already-open bus addressed to the DDC-CI slave. Each read must
// return at most one message segment, as the i2c-dev driver does.
func New(rw io.ReadWriteCloser) *CI {
	return &CI{rw: rw}
}

// GetVCP gets the value and maximum of a uint16 VCP.
func (d *CI) GetVCP(vcp byte) (val, max uint16, err error) {
	if err := d.tx([]byte{0x01, vcp}, time.Millisecond*40); err != nil {
		return 0, 0, err
	}
	for range 5 {
		buf, err := d.rx()
		if errors.Is(err, ErrNoReply) || (err == nil && len(buf) == 0) {
			d.next = time.Now().Add(time.Millisecond * 40)
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		return parseVCPReply(vcp, buf)
	}
	return 0, 0, ErrNoReply
}

func parseVCPReply(vcp byte, buf []byte) (val, max uint16, err error) {
	if len(buf) != 8 {
		return 0, 0, fmt.Errorf("%w: unexpected ddc vcp response length %d", ErrBadReply, len(buf))
	}
	if reply := buf[0]; reply != 0x02 {
		return 0, 0, fmt.Errorf("%w: unexpected ddc reply opcode %d", ErrBadReply, reply)
	}
	switch result := buf[1]; result {
	case 0x00:
	case 0x01:
		return 0, 0, fmt.Errorf("%w 0x%02X", ErrUnsupportedVCP, vcp)
	default:
		return 0, 0, fmt.Errorf("%w: unexpected ddc reply result code %d", ErrBadReply, result)
	}
	if retVCP := buf[2]; retVCP != vcp {
		return 0, 0, fmt.Errorf("%w: unexpected ddc reply vcp code 0x%02X (we requested 0x%02X)", ErrBadReply, retVCP, vcp)
	}
	return binary.BigEndian.Uint16(buf[6:8]), binary.BigEndian.Uint16(buf[4:6]), nil
}

// SetVCP sets a VCP.
func (d *CI) SetVCP(vcp byte, val uint16) error {
	// https://glenwing.github.io/docs/VESA-DDCCI-1.1.pdf page 20
	return d.tx([]byte{0x03, vcp, byte(val >> 8), byte(val)}, time.Millisecond*50)
}

// Close closes the device.
func (d *CI) Close() error {
	return d.rw.Close()
}

// tx sends a command, then prevents any other command from being sent until
// wait has elapsed.
func (d *CI) tx(cmd []byte, wait time.Duration) error {
	d.wait()

	// header (excluding slave address), payload, checksum
	buf := make([]byte, 0, len(cmd)+3)
	buf = append(buf, _I2C_ADDR_HOST, 0x80|byte(len(cmd)))
	buf = append(buf, cmd...)
	buf = append(buf, checksum(_I2C_ADDR_DDC_CI<<1, buf...))

	if _, err := d.rw.Write(buf); err != nil {
		return err
	}
	d.next = time.Now().Add(wait)
	return nil
}

func (d *CI) rx() ([]byte, error) {
	d.wait()

	hdr := make([]byte, 2)
	n, err := d.rw.Read(hdr)
	if err == nil && n != len(hdr) {
		err = fmt.Errorf("short ddc header read, expected %d bytes, got %d", len(hdr), n)
	}
	if err != nil {
		return nil, err
	}

	var (
		hdrAddr = hdr[0] >> 1
		pktLen  = int(hdr[1] &^ 0x80)
	)
	switch {
	case hdrAddr == 0:
		return nil, ErrNoReply
	case hdrAddr != _I2C_ADDR_DDC_CI:
		return nil, fmt.Errorf("bad ddc source address 0x%X", hdrAddr)
	case hdr[1]&0x80 == 0:
		return nil, fmt.Errorf("bad ddc header length: flag 0x80 not set")
	}

	buf := make([]byte, pktLen+1)
	n, err = d.rw.Read(buf)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short ddc payload read, expected %d bytes, got %d", len(buf), n)
	}
	if err != nil {
		return nil, err
	}

	// the host address is the virtual source for replies
	if checksum(_I2C_ADDR_HOST-1, append(hdr, buf...)...) != 0 {
		return nil, ErrChecksum
	}
	return buf[:pktLen], nil
}

func (d *CI) wait() {
	if dur := time.Until(d.next); dur > 0 {
		time.Sleep(dur)
	}
}

func checksum(init byte, b ...byte) byte {
	for _, c := range b {
		init ^= c
	}
	return init
}
