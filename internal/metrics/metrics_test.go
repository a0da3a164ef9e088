package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("lobbysync")

	c.EventApplied("NEW_POST", true, time.Millisecond)
	c.EventApplied("NEW_POST", false, time.Millisecond)
	c.EventApplied("NEW_POST", true, time.Millisecond)
	c.FrameDropped(DropSelfOrigin)
	c.Reordered()
	c.PublishResult("NEW_POST", nil)
	c.PublishResult("NEW_POST", errors.New("closed"))
	c.PersistFailed("lobbysync.feed.v3")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsApplied.WithLabelValues("NEW_POST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EventsIgnored.WithLabelValues("NEW_POST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FramesDropped.WithLabelValues(DropSelfOrigin)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SeqReordered))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Published.WithLabelValues("NEW_POST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PublishFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PersistFailures.WithLabelValues("lobbysync.feed.v3")))
}

func TestCollector_Sizes(t *testing.T) {
	c := NewCollector("lobbysync")
	c.SetSizes(Sizes{Posts: 3, Messages: 2, Peers: 1, Watched: 1, Live: true})

	assert.Equal(t, 3.0, testutil.ToFloat64(c.Posts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Live))

	c.SetSizes(Sizes{})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Live))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.EventApplied("X", true, 0)
		c.FrameDropped(DropUndecodable)
		c.Reordered()
		c.PublishResult("X", nil)
		c.PersistFailed("k")
		c.SetSizes(Sizes{Live: true})
	})
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("lobbysync")
	b := NewCollector("lobbysync")
	a.Reordered()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SeqReordered))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("lobbysync")
	c.FrameDropped(DropUndecodable)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `lobbysync_frames_dropped_total{reason="undecodable"} 1`))
}
