package pipeline

import "errors"

var (
	ErrEstimatorCreationFailed = errors.New("failed to create rate estimator")
	ErrSignalSetupFailed       = errors.New("failed to set up signal source")
	ErrAcquisitionRunFailed    = errors.New("acquisition component failed")
	ErrAnalyzerRunFailed       = errors.New("analyzer component failed")
	ErrPresentationRunFailed   = errors.New("presentation component failed")
)
