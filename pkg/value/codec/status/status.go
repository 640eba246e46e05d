// Package status declares error constants returned by the format codecs.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between codec users and the
// individual format implementations.
package status

import "github.com/strataconf/strata/pkg/errors"

var (
	// ErrParse indicates input a format decoder could not represent as a canonical value
	ErrParse = errors.New("parse error")

	// ErrEncode indicates a value shape the target format cannot express
	ErrEncode = errors.New("encode error")

	// ErrUnknownFormat indicates a format tag with no registered codec
	ErrUnknownFormat = errors.New("unknown format")
)
