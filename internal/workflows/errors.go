package workflows

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOptions is returned when rendition settings cannot produce an image
	ErrInvalidOptions = errors.New("invalid workflow options")

	// ErrStepFailed is returned when a workflow step fails
	ErrStepFailed = errors.New("workflow step failed")
)

// DescriptorError carries the descriptor and object key a failure occurred on
type DescriptorError struct {
	Path string
	Step string
	Key  string
	Err  error
}

func (e *DescriptorError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Path, e.Step, e.Key, e.Err)
}

func (e *DescriptorError) Unwrap() error {
	return e.Err
}

// Is reports a DescriptorError as ErrStepFailed
func (e *DescriptorError) Is(target error) bool {
	return target == ErrStepFailed
}
