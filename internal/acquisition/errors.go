package acquisition

import "errors"

var (
	ErrTransportUnavailable  = errors.New("transport unavailable")
	ErrConfigurationConflict = errors.New("signal function cannot be set while a transport is active")
	ErrNoSourceConfigured    = errors.New("no acquisition source configured")
	ErrMalformedSample       = errors.New("malformed sample token")
	ErrNilSignalFunction     = errors.New("signal function is nil")
	ErrCommandFailed         = errors.New("failed to send transport command")
)
