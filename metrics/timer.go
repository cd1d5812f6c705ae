package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

// Float64Timer records durations in milliseconds.
type Float64Timer struct {
	measureMs *stats.Float64Measure
	view      *view.View
}

// NewTimerMs creates a timer aggregated into a millisecond distribution.
func NewTimerMs(name, desc string) *Float64Timer {
	log.Debugf("registering timer: %s - %s", name, desc)
	fMeasure := stats.Float64(name, desc, stats.UnitMilliseconds)
	fView := &view.View{
		Name:        name,
		Measure:     fMeasure,
		Description: desc,
		Aggregation: view.Distribution(1, 10, 100, 1000, 10000, 60000, 600000, 3600000),
	}
	if err := view.Register(fView); err != nil {
		panic(err)
	}

	return &Float64Timer{
		measureMs: fMeasure,
		view:      fView,
	}
}

// Start begins timing.
func (t *Float64Timer) Start(ctx context.Context) *Stopwatch {
	return &Stopwatch{ctx: ctx, start: time.Now(), recorder: t.record}
}

func (t *Float64Timer) View() *view.View {
	return t.view
}

func (t *Float64Timer) record(ctx context.Context, d time.Duration) {
	stats.Record(ctx, t.measureMs.M(float64(d)/float64(time.Millisecond)))
}

// Stopwatch is a running measurement.
type Stopwatch struct {
	ctx      context.Context
	start    time.Time
	recorder func(context.Context, time.Duration)
}

// Stop records and returns the elapsed time.
func (sw *Stopwatch) Stop() time.Duration {
	d := time.Since(sw.start)
	sw.recorder(sw.ctx, d)
	return d
}
