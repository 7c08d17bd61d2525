// Command dapbridge bridges a CMSIS-DAP USB-HID probe to GDB's Remote
// Serial Protocol over TCP, per spec.md §1's OVERVIEW: gdb <-RSP/TCP->
// dapbridge <-CMSIS-DAP/HID-> probe <-SWD-> ARM core.
package main

import (
	"flag"
	"log"
	"net"

	"dapbridge/probe"
	"dapbridge/probe/hidio"
	"dapbridge/rsp"
	"dapbridge/swd"
	"dapbridge/target"
)

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:3333", "TCP address to accept one GDB connection on")
	clockHz := flag.Uint("clock", 1_000_000, "SWJ clock speed in Hz after bring-up")
	hidraw := flag.Bool("hidraw", false, "use the Linux hidraw fallback discoverer instead of libusb")
	debug := flag.Bool("debug", false, "enable verbose per-layer logging")
	flag.Parse()

	var discoverer hidio.Discoverer = hidio.USBDiscoverer{}
	if *hidraw {
		discoverer = hidio.HidrawDiscoverer{}
	}

	tr, err := probe.Open(discoverer, *debug)
	if err != nil {
		log.Fatalf("dapbridge: probe bring-up: %v", err)
	}
	defer tr.Close()

	log.Printf("dapbridge: connected to probe, IDCODE=0x%08x", tr.IDCode)

	if *clockHz != 0 {
		if err := tr.SetSpeed(uint32(*clockHz)); err != nil {
			log.Printf("dapbridge: clock set failed, continuing at default speed: %v", err)
		}
	}

	eng := swd.NewEngine(tr)
	if err := eng.Init(); err != nil {
		log.Fatalf("dapbridge: DP power-up: %v", err)
	}

	iface := buildTarget(eng, *debug)

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("dapbridge: listen %s: %v", *listenAddr, err)
	}
	defer ln.Close()
	log.Printf("dapbridge: listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("dapbridge: accept: %v", err)
			continue
		}
		serveOne(conn, iface, *debug)
	}
}

// buildTarget walks the ROM table and wires an ADIv5Target if a SCS
// component turned up, falling back to ProbeOnlyTarget otherwise
// (spec.md §4.3's two realisations).
func buildTarget(eng *swd.Engine, debug bool) target.Interface {
	disc, err := eng.WalkAPs()
	if err != nil {
		log.Printf("dapbridge: ROM-table walk failed, falling back to probe-only target: %v", err)
		return target.ProbeOnlyTarget{}
	}
	if _, ok := disc.FindSCS(); !ok {
		log.Printf("dapbridge: no SCS component discovered, falling back to probe-only target")
		return target.ProbeOnlyTarget{}
	}
	t := target.NewADIv5Target(eng, disc)
	t.Debug = debug
	return t
}

// serveOne runs the single-threaded cooperative RSP loop for one GDB
// session to completion before the listener accepts the next connection
// (spec.md §5: one debugger session at a time).
func serveOne(conn net.Conn, iface target.Interface, debug bool) {
	defer conn.Close()
	log.Printf("dapbridge: debugger connected from %s", conn.RemoteAddr())

	srv := rsp.NewServer(conn, iface)
	srv.Debug = debug
	if err := srv.Serve(); err != nil {
		log.Printf("dapbridge: session ended: %v", err)
		return
	}
	log.Printf("dapbridge: debugger disconnected")
}
