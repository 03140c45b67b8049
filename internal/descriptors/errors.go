package descriptors

import "github.com/zeebo/errs"

var (
	// ErrValidation is the error class for malformed descriptors
	ErrValidation = errs.Class("validation")

	// ErrSource is the error class for failures enumerating descriptors
	ErrSource = errs.Class("descriptor source")
)
