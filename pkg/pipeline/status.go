package pipeline

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/config"
	"github.com/xaionaro-go/audiofx/pkg/effectstream"
)

// Status is the outcome of a run; its value is the process exit code.
type Status int

const (
	StatusOK = Status(iota)
	StatusEffectError
	StatusAudioIOError
	StatusFileNotFound
	StatusOutOfMemory
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusEffectError:
		return "EffectError"
	case StatusAudioIOError:
		return "AudioIOError"
	case StatusFileNotFound:
		return "FileNotFound"
	case StatusOutOfMemory:
		return "OutOfMemory"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var (
	ErrEffect      = errors.New("effect error")
	ErrAudioIO     = errors.New("audio I/O error")
	ErrOutOfMemory = errors.New("out of memory")
)

// StatusOf classifies an error returned by Run. For aggregated errors the
// first one decides.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var mErr *multierror.Error
	if errors.As(err, &mErr) && len(mErr.Errors) > 0 {
		err = mErr.Errors[0]
	}
	switch {
	case errors.Is(err, ErrOutOfMemory), errors.Is(err, audiofile.ErrTooLarge):
		return StatusOutOfMemory
	case errors.Is(err, audiofile.ErrNotFound):
		return StatusFileNotFound
	case errors.Is(err, ErrEffect), errors.Is(err, effectstream.ErrEffect), errors.Is(err, config.ErrInvalid):
		return StatusEffectError
	case errors.Is(err, ErrAudioIO):
		return StatusAudioIOError
	}
	return StatusEffectError
}
