package effect

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEffect = errors.New("unknown effect")
	ErrUnknownParam  = errors.New("unknown parameter")
	ErrInvalidParam  = errors.New("invalid parameter value")
	ErrNotLoaded     = errors.New("effect is not loaded")
	ErrAlreadyLoaded = errors.New("effect is already loaded")
	ErrInvalidBuffer = errors.New("invalid buffer")
	ErrModel         = errors.New("unable to load the model")
	ErrClosed        = errors.New("effect is closed")
	ErrLoadFailed    = errors.New("an earlier load of the effect failed")
)

// ErrorModel wraps a model loading failure so that it matches ErrModel.
func ErrorModel(err error) error {
	return fmt.Errorf("%w: %w", ErrModel, err)
}
