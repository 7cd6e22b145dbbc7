package message

import "errors"

var (
	ErrJSONMarshalFailed   = errors.New("failed to marshal frame")
	ErrJSONUnmarshalFailed = errors.New("failed to unmarshal frame")
)
