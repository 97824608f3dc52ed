package metrics

import (
	"time"

	"github.com/benbjohnson/clock"
)

// StartTimer starts measuring. The returned function reports the elapsed time as a timing and returns it.
func StartTimer(c Client, clk clock.Clock, name string, tags Tags) func() time.Duration {
	start := clk.Now()

	return func() time.Duration {
		elapsed := clk.Since(start)
		c.Timing(name, tags, elapsed)

		return elapsed
	}
}
