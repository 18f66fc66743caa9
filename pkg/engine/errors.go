package engine

import "errors"

var (
	// ErrClosed is returned when operations are performed on a closed engine
	ErrClosed = errors.New("engine is closed")
	// ErrUnknownMatchMode is returned by Search for an unsupported mode
	ErrUnknownMatchMode = errors.New("unknown match mode")
)
