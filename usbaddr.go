/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Device address
 */

package main

import (
	"fmt"

	"github.com/google/gousb"
)

// DeviceAddress identifies a USB device by vendor/product ID. Immutable
// for the life of the bridge.
type DeviceAddress struct {
	Vendor  gousb.ID
	Product gousb.ID
}

func (a DeviceAddress) String() string {
	return fmt.Sprintf("%04x:%04x", uint16(a.Vendor), uint16(a.Product))
}

func newDeviceAddress(vendor, product uint64) DeviceAddress {
	return DeviceAddress{Vendor: gousb.ID(vendor), Product: gousb.ID(product)}
}
