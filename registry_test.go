/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Tests for registry.go
 */

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupDriverKnown(t *testing.T) {
	factory, err := lookupDriver("ch34x")
	require.NoError(t, err)
	require.NotNil(t, factory())
}

func TestLookupDriverUnknown(t *testing.T) {
	_, err := lookupDriver("nonexistent")
	require.Error(t, err)
	var be *BridgeError
	require.ErrorAs(t, err, &be)
	require.Equal(t, KindConfig, be.Kind)
}
