package metrics

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var log = logging.Logger("metrics")

// Int64Counter wraps an opencensus int64 measure that is used as a counter.
type Int64Counter struct {
	measureCt *stats.Int64Measure
	view      *view.View
}

// NewInt64Counter creates a new Int64Counter with dimensionless units.
func NewInt64Counter(name, desc string) *Int64Counter {
	log.Debugf("registering int64 counter: %s - %s", name, desc)
	iMeasure := stats.Int64(name, desc, stats.UnitDimensionless)
	iView := &view.View{
		Name:        name,
		Measure:     iMeasure,
		Description: desc,
		Aggregation: view.Sum(),
	}
	if err := view.Register(iView); err != nil {
		// counters are created from package vars, a failure here is a
		// programming error
		panic(err)
	}

	return &Int64Counter{
		measureCt: iMeasure,
		view:      iView,
	}
}

// Inc increments the counter by value `v`.
func (c *Int64Counter) Inc(ctx context.Context, v int64) {
	stats.Record(ctx, c.measureCt.M(v))
}

func (c *Int64Counter) View() *view.View {
	return c.view
}
