package collection

import (
	"go.uber.org/zap"

	"github.com/xtxerr/atlas/config"
)

type options struct {
	log                *zap.Logger
	retainSeries       bool
	sheet              string
	percentileAccuracy float64
}

func newOptions(opts []Option) options {
	o := options{
		retainSeries:       config.DefaultRetainSeries,
		percentileAccuracy: config.DefaultPercentileAccuracy,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures Build and FromSeries.
type Option func(*options)

// WithLogger sets the logger used during construction.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRetainSeries controls whether raw per-instrument series are kept
// after materialization. When false, Instrument returns ErrNotFound.
func WithRetainSeries(retain bool) Option {
	return func(o *options) { o.retainSeries = retain }
}

// WithSheet selects the worksheet read from .xlsx instrument files.
func WithSheet(sheet string) Option {
	return func(o *options) { o.sheet = sheet }
}

// WithPercentileAccuracy sets the relative accuracy of the sketch used by
// ReturnStats. Values outside (0, 1) fall back to the default.
func WithPercentileAccuracy(accuracy float64) Option {
	return func(o *options) {
		if accuracy > 0 && accuracy < 1 {
			o.percentileAccuracy = accuracy
		}
	}
}
