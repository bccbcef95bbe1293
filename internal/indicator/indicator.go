// Package indicator computes technical indicators over an ordered price
// series, oldest sample first. All functions are pure; a series shorter than
// the indicator's window yields ErrInsufficientData, which callers must treat
// as "not yet evaluable" rather than a failure.
package indicator

import "errors"

// ErrInsufficientData marks a series too short for the requested window.
var ErrInsufficientData = errors.New("indicator: insufficient data")
