package jobs

import (
	"time"

	"github.com/inematds/inemavox/pkg/pipeline"
)

// stageClock attributes wall time to pipeline stages by watching checkpoint
// advances. Each observed increment of last_step_num closes out the stage
// that just finished with the elapsed time since the previous advance.
//
// It is intentionally coarse: multiple stages completing between two polls
// split the interval evenly; the averages smooth out over runs.
type stageClock struct {
	lastStep  int
	lastTick  time.Time
	durations map[string]float64
}

func newStageClock(start time.Time) *stageClock {
	return &stageClock{
		lastTick:  start,
		durations: make(map[string]float64),
	}
}

// observe records any checkpoint advance since the previous observation.
func (c *stageClock) observe(now time.Time, step int) {
	if step <= c.lastStep {
		return
	}
	if step > pipeline.TotalStages() {
		step = pipeline.TotalStages()
	}
	elapsed := now.Sub(c.lastTick).Seconds()
	advanced := step - c.lastStep
	per := elapsed / float64(advanced)
	for n := c.lastStep + 1; n <= step; n++ {
		c.durations[pipeline.Stages[n-1].ID] += per
	}
	c.lastStep = step
	c.lastTick = now
}

// finish closes the clock at process exit and returns per-stage durations.
// An interval left open by an exit between checkpoint writes is attributed
// to the stage that was in flight.
func (c *stageClock) finish(now time.Time, finalStep int) map[string]float64 {
	c.observe(now, finalStep)
	if c.lastStep < pipeline.TotalStages() {
		if tail := now.Sub(c.lastTick).Seconds(); tail > 0 {
			c.durations[pipeline.Stages[c.lastStep].ID] += tail
		}
	}
	return c.durations
}
