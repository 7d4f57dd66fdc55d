/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Entry point: flag parsing and wiring
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

const usageText = `Usage:
    %s -p PATH -d DRIVER -vid VENDOR_ID -pid PRODUCT_ID [-b BAUD]

Bridges a USB serial-converter chip to a PTY published at PATH.

Options:
    -p,   --path         filesystem path to publish the PTY symlink at (required)
    -d,   --driver       chip driver name, e.g. "ch34x" (required)
    -vid, --vendor-id    USB vendor ID, decimal or 0x-prefixed hex (required)
    -pid, --product-id   USB product ID, decimal or 0x-prefixed hex (required)
    -b,   --baud         initial baud rate (default 9600)
    -c,   --config       path to a configuration file
          --tui          show a live status dashboard
`

func usage() {
	fmt.Printf(usageText, os.Args[0])
}

func usageError(format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	fmt.Fprintf(os.Stderr, "Try %s -h for more information\n", os.Args[0])
	os.Exit(2)
}

type cliParams struct {
	path      string
	driver    string
	vendorID  uint64
	productID uint64
	baud      int
	confPath  string
	tui       bool

	haveBaud bool
}

func parseArgv() cliParams {
	p := cliParams{}
	var havePath, haveDriver, haveVendor, haveProduct bool

	args := os.Args[1:]
	next := func(i int, flag string) string {
		if i+1 >= len(args) {
			usageError("missing value for %s", flag)
		}
		return args[i+1]
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-h", "-help", "--help":
			usage()
			os.Exit(0)
		case "-p", "--path":
			p.path = next(i, args[i])
			i++
			havePath = true
		case "-d", "--driver":
			p.driver = next(i, args[i])
			i++
			haveDriver = true
		case "-vid", "--vendor-id":
			v, err := strconv.ParseUint(next(i, args[i]), 0, 16)
			if err != nil {
				usageError("invalid vendor id: %s", err)
			}
			p.vendorID = v
			i++
			haveVendor = true
		case "-pid", "--product-id":
			v, err := strconv.ParseUint(next(i, args[i]), 0, 16)
			if err != nil {
				usageError("invalid product id: %s", err)
			}
			p.productID = v
			i++
			haveProduct = true
		case "-b", "--baud":
			v, err := strconv.Atoi(next(i, args[i]))
			if err != nil {
				usageError("invalid baud rate: %s", err)
			}
			p.baud = v
			p.haveBaud = true
			i++
		case "-c", "--config":
			p.confPath = next(i, args[i])
			i++
		case "--tui":
			p.tui = true
		default:
			usageError("unrecognized argument %q", args[i])
		}
	}

	if !havePath || !haveDriver || !haveVendor || !haveProduct {
		usageError("missing required flags")
	}

	return p
}

func main() {
	params := parseArgv()

	if err := ConfLoad(params.confPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	baud := Conf.DefaultBaud
	if params.haveBaud {
		baud = params.baud
	}

	log := NewLogger(os.Stdout, Conf.LogLevel)

	newDriver, err := lookupDriver(params.driver)
	if err != nil {
		log.Error('!', "%s", err)
		os.Exit(2)
	}

	addr := newDeviceAddress(params.vendorID, params.productID)

	sup := NewSupervisor(SupervisorConfig{
		Addr:         addr,
		Path:         params.path,
		Baud:         baud,
		DriverName:   params.driver,
		NewDriver:    newDriver,
		Log:          log,
		PollInterval: Conf.PollInterval,
	})

	if params.tui {
		go func() {
			if err := runStatusTUI(sup); err != nil {
				log.Error('!', "tui: %s", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		log.Error('!', "%s", err)
		os.Exit(1)
	}
}
