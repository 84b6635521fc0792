// Package channel delivers notifications outside the application.
package channel

import "errors"

// ErrNoAddress means the user has no address on the channel; the delivery
// is skipped rather than failed.
var ErrNoAddress = errors.New("user has no address for channel")
