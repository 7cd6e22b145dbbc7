package estimator

import "errors"

var (
	ErrInvalidMaxDataLength    = errors.New("maxDataLength must be positive")
	ErrInvalidSamplingInterval = errors.New("samplingInterval must be positive")
	ErrInvalidDataProportion   = errors.New("dataProportion must be in (0, 1]")
	ErrInvalidCalculationDelay = errors.New("calculationDelay must be positive")
	ErrInvalidRateHistory      = errors.New("rateHistoryMaxLength must be positive")
	ErrAnalysisWindowTooShort  = errors.New("analysis window must hold at least two samples")
)
