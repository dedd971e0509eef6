package aggregator

import "sync/atomic"

// RunCounter counts the frames seen over one pipeline run. It is safe for
// use from any goroutine and never goes backwards.
type RunCounter struct {
	n atomic.Int64
}

// NewRunCounter returns a counter starting at zero.
func NewRunCounter() *RunCounter {
	return &RunCounter{}
}

// Next advances the counter and returns its value before the increment.
func (c *RunCounter) Next() int {
	return int(c.n.Add(1) - 1)
}

// Value returns the number of frames counted so far.
func (c *RunCounter) Value() int {
	return int(c.n.Load())
}
