package presentation

import "errors"

var (
	ErrServerFailed  = errors.New("presentation server failed")
	ErrNoFrameYet    = errors.New("no frame published yet")
	ErrPublishFailed = errors.New("failed to publish frame")
)
