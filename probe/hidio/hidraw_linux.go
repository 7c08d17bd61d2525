//go:build linux

package hidio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
	"golang.org/x/sys/unix"
)

// hidrawDevInfo mirrors struct hidraw_devinfo from <linux/hidraw.h>.
type hidrawDevInfo struct {
	BusType uint32
	Vendor  int16
	Product int16
}

var (
	hidiocGRawInfo = ioctl.IOR('H', 0x03, unsafe.Sizeof(hidrawDevInfo{}))
)

// HidrawDevice is a fallback transport for Linux hosts where the probe is
// already bound to the kernel's generic-hidraw driver rather than claimed
// directly through libusb. It talks to /dev/hidrawN with plain
// read/write/poll syscalls, grounded on Daedaluz-goserial's ioctl-driven
// access to a Linux character device.
type HidrawDevice struct {
	fd   int
	info Info
}

// HidrawDiscoverer scans /dev/hidraw* for a device whose kernel HID
// report product string contains "CMSIS-DAP". It is a secondary
// Discoverer to USBDiscoverer, useful when the probe is already
// hidraw-bound (e.g. left attached from a previous non-libusb session).
type HidrawDiscoverer struct{}

func (HidrawDiscoverer) Discover() (Device, error) {
	matches, err := filepath.Glob("/dev/hidraw*")
	if err != nil {
		return nil, fmt.Errorf("hidio: glob hidraw nodes: %w", err)
	}
	for _, path := range matches {
		dev, err := openHidraw(path)
		if err != nil {
			continue
		}
		name, _ := hidrawName(dev.fd)
		if strings.Contains(name, cmsisDapProduct) {
			return dev, nil
		}
		dev.Close()
	}
	return nil, ErrNotFound
}

func openHidraw(path string) (*HidrawDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hidio: open %s: %w", path, err)
	}

	var info hidrawDevInfo
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), hidiocGRawInfo, uintptr(unsafe.Pointer(&info))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("hidio: HIDIOCGRAWINFO %s: %w", path, errno)
	}

	return &HidrawDevice{
		fd: fd,
		info: Info{
			VendorID:  uint16(info.Vendor),
			ProductID: uint16(info.Product),
			Path:      path,
		},
	}, nil
}

// hidrawName reads the kernel-reported HID device name with the
// HIDIOCGRAWNAME ioctl into a fixed 256-byte buffer; a longer name is
// truncated to that size.
func hidrawName(fd int) (string, error) {
	buf := make([]byte, 256)
	req := ioctl.IOR('H', 0x04, uintptr(len(buf)))
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return "", errno
	}
	return strings.TrimRight(string(buf[:n]), "\x00"), nil
}

func (d *HidrawDevice) Write(report []byte) error {
	_, err := unix.Write(d.fd, report)
	if err != nil {
		return fmt.Errorf("hidio: hidraw write: %w", err)
	}
	return nil
}

func (d *HidrawDevice) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("hidio: hidraw poll: %w", err)
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	read, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("hidio: hidraw read: %w", err)
	}
	if read <= 0 {
		return 0, ErrTimeout
	}
	return read, nil
}

func (d *HidrawDevice) Close() error {
	return unix.Close(d.fd)
}

func (d *HidrawDevice) Info() Info {
	return d.info
}
