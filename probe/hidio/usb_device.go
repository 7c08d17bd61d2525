package hidio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/gousb"
)

// cmsisDapProduct is the literal substring spec.md's discovery step
// requires: "select the first whose product string contains the literal
// substring CMSIS-DAP".
const cmsisDapProduct = "CMSIS-DAP"

// hidInterfaceNumber is the interrupt-transfer interface number CMSIS-DAP probes
// expose their HID report pipe on. Most CMSIS-DAP firmware publishes it as
// the first (and only) HID interface, alt-setting 0.
const hidInterfaceNumber = 0

// USBDevice is the production Device, backed by libusb through gousb. It
// performs interrupt OUT/IN transfers to carry the fixed-MTU HID reports
// the probe negotiates during capability exchange.
type USBDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
	info Info
}

// USBDiscoverer finds exactly one attached CMSIS-DAP probe via libusb
// enumeration, per spec.md §4.1 Discovery.
type USBDiscoverer struct{}

func (USBDiscoverer) Discover() (Device, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		// Open everything; product strings require a control transfer we
		// can only issue once the device handle exists.
		return true
	})
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("hidio: enumerate usb devices: %w", err)
	}

	var chosen *gousb.Device
	for _, d := range devs {
		product, perr := d.Product()
		if chosen == nil && perr == nil && strings.Contains(product, cmsisDapProduct) {
			chosen = d
			continue
		}
		d.Close()
	}
	if chosen == nil {
		ctx.Close()
		return nil, ErrNotFound
	}

	product, _ := chosen.Product()
	manufacturer, _ := chosen.Manufacturer()

	cfgNum, err := chosen.ActiveConfigNum()
	if err != nil {
		cfgNum = 1
	}
	cfg, err := chosen.Config(cfgNum)
	if err != nil {
		chosen.Close()
		ctx.Close()
		return nil, fmt.Errorf("hidio: claim config: %w", err)
	}
	intf, err := cfg.Interface(hidInterfaceNumber, 0)
	if err != nil {
		cfg.Close()
		chosen.Close()
		ctx.Close()
		return nil, fmt.Errorf("hidio: claim interface: %w", err)
	}

	out, in, err := endpoints(intf)
	if err != nil {
		intf.Close()
		cfg.Close()
		chosen.Close()
		ctx.Close()
		return nil, err
	}

	return &USBDevice{
		ctx:  ctx,
		dev:  chosen,
		cfg:  cfg,
		intf: intf,
		out:  out,
		in:   in,
		info: Info{
			VendorID:     uint16(chosen.Desc.Vendor),
			ProductID:    uint16(chosen.Desc.Product),
			Product:      product,
			Manufacturer: manufacturer,
		},
	}, nil
}

// endpoints locates the first interrupt OUT and IN endpoints on the
// claimed interface — the pair a CMSIS-DAP HID interface always exposes
// for its report pipe.
func endpoints(intf *gousb.Interface) (*gousb.OutEndpoint, *gousb.InEndpoint, error) {
	var outAddr, inAddr gousb.EndpointAddress
	var haveOut, haveIn bool
	for _, epDesc := range intf.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut && !haveOut {
			outAddr, haveOut = epDesc.Address, true
		}
		if epDesc.Direction == gousb.EndpointDirectionIn && !haveIn {
			inAddr, haveIn = epDesc.Address, true
		}
	}
	if !haveOut || !haveIn {
		return nil, nil, ErrNotFound
	}
	out, err := intf.OutEndpoint(int(outAddr))
	if err != nil {
		return nil, nil, fmt.Errorf("hidio: open out endpoint: %w", err)
	}
	in, err := intf.InEndpoint(int(inAddr))
	if err != nil {
		return nil, nil, fmt.Errorf("hidio: open in endpoint: %w", err)
	}
	return out, in, nil
}

func (d *USBDevice) Write(report []byte) error {
	_, err := d.out.Write(report)
	if err != nil {
		return fmt.Errorf("hidio: write: %w", err)
	}
	return nil
}

func (d *USBDevice) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.in.ReadContext(ctx, buf)
	if err != nil {
		return n, ErrTimeout
	}
	return n, nil
}

func (d *USBDevice) Close() error {
	d.intf.Close()
	d.cfg.Close()
	err := d.dev.Close()
	d.ctx.Close()
	return err
}

func (d *USBDevice) Info() Info {
	return d.info
}
