package collection

import (
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// returnQuantiles are the percentiles reported by ReturnStats.
var returnQuantiles = []float64{0.05, 0.50, 0.95, 0.99}

// ReturnStats summarizes an instrument's per-step returns.
type ReturnStats struct {
	Instrument string `json:"instrument"`

	// Count is the number of steps with a defined return: every observed
	// step after the first.
	Count int `json:"count"`

	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stddev"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Cumulative float64 `json:"cumulative"`

	// Percentiles from a DDSketch, within the configured relative accuracy.
	P05 float64 `json:"p05"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ReturnStats computes return statistics for instrument id. An instrument
// observed at a single step has Count 0 and zero statistics.
func (c *Collection) ReturnStats(id int) (ReturnStats, error) {
	if err := c.checkInstrument(id); err != nil {
		return ReturnStats{}, err
	}

	rs := ReturnStats{Instrument: c.names[id]}
	span := c.spans[id]
	if span.Len() < 2 {
		return rs, nil
	}

	row := c.returns.RawRowView(id)
	returns := row[span.First+1 : span.Last+1]

	sketch, err := ddsketch.NewDefaultDDSketch(c.accuracy)
	if err != nil {
		return ReturnStats{}, fmt.Errorf("create sketch: %w", err)
	}

	growth := 1.0
	for _, r := range returns {
		if err := sketch.Add(r); err != nil {
			return ReturnStats{}, fmt.Errorf("sketch %s: %w", rs.Instrument, err)
		}
		growth *= 1 + r
	}

	rs.Count = len(returns)
	rs.Mean, rs.StdDev = stat.MeanStdDev(returns, nil)
	if rs.Count < 2 {
		rs.StdDev = 0
	}
	rs.Min = floats.Min(returns)
	rs.Max = floats.Max(returns)
	rs.Cumulative = growth - 1

	q, err := sketch.GetValuesAtQuantiles(returnQuantiles)
	if err != nil {
		return ReturnStats{}, fmt.Errorf("quantiles %s: %w", rs.Instrument, err)
	}
	rs.P05, rs.P50, rs.P95, rs.P99 = q[0], q[1], q[2], q[3]

	return rs, nil
}
