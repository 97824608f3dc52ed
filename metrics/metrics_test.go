package metrics

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	noopClient

	timings map[string]time.Duration
}

func (r *recordingClient) Timing(name string, tags Tags, d time.Duration) {
	r.timings[name] = d
}

func Test_StartTimer(t *testing.T) {
	c := &recordingClient{timings: map[string]time.Duration{}}
	clk := clock.NewMock()

	stop := StartTimer(c, clk, "step.duration", Tags{"step": "Review"})
	clk.Add(250 * time.Millisecond)

	require.Equal(t, 250*time.Millisecond, stop())
	require.Equal(t, 250*time.Millisecond, c.timings["step.duration"])
}

func Test_NoopClient(t *testing.T) {
	c := NewNoopClient().WithTags(Tags{"backend": "memory"})
	c.Counter("x", nil, 1)
	require.NotNil(t, c)
}
