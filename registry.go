/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Driver registry
 */

package main

var driverRegistry = map[string]func() Driver{
	"ch34x": newCh34xDriver,
}

// lookupDriver resolves a driver name to its factory. An unknown name
// is a Config error: fatal before the supervisor starts.
func lookupDriver(name string) (func() Driver, error) {
	factory, ok := driverRegistry[name]
	if !ok {
		return nil, newErrf(KindConfig, "driver", "unknown driver %q (known: ch34x)", name)
	}
	return factory, nil
}
