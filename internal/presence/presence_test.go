package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lobbysync/internal/feed"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRoster_SweepIsStrict(t *testing.T) {
	r := NewRoster()
	r.Touch(feed.Profile{Handle: "A"}, "o1", t0)
	r.Touch(feed.Profile{Handle: "B"}, "o2", t0.Add(time.Second))

	// A is exactly idle old: kept.
	assert.Equal(t, 0, r.Sweep(t0.Add(5*time.Second), 5*time.Second))
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, 1, r.Sweep(t0.Add(5*time.Second+time.Millisecond), 5*time.Second))
	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, "B", list[0].Profile.Handle)
}

func TestRoster_TouchRefreshes(t *testing.T) {
	r := NewRoster()
	r.Touch(feed.Profile{Handle: "A", Bio: "old"}, "o1", t0)
	r.Touch(feed.Profile{Handle: "A", Bio: "new"}, "o1", t0.Add(4*time.Second))

	assert.Equal(t, 0, r.Sweep(t0.Add(6*time.Second), 5*time.Second))
	assert.Equal(t, "new", r.List()[0].Profile.Bio)
}

func TestRoster_KeyedByOrigin(t *testing.T) {
	r := NewRoster()
	r.Touch(feed.Profile{Handle: "c"}, "o3", t0)
	r.Touch(feed.Profile{Handle: "a"}, "o2", t0)
	r.Touch(feed.Profile{Handle: "a"}, "o1", t0)
	r.Touch(feed.Profile{Handle: "b"}, "o4", t0)

	var got []string
	for _, rec := range r.List() {
		got = append(got, rec.Profile.Handle+"/"+rec.Origin)
	}
	assert.Equal(t, []string{"a/o1", "a/o2", "b/o4", "c/o3"}, got)

	// A rename from the same origin replaces its record.
	r.Touch(feed.Profile{Handle: "z"}, "o4", t0)
	assert.Equal(t, 4, r.Len())
}

func TestViewers_CountAndSweep(t *testing.T) {
	v := NewViewers()
	assert.True(t, v.Touch("p1", "o1", t0))
	assert.True(t, v.Touch("p1", "o2", t0.Add(3*time.Second)))
	assert.False(t, v.Touch("p1", "o1", t0.Add(time.Second)))
	assert.True(t, v.Touch("p2", "o1", t0))

	assert.Equal(t, 2, v.Count("p1"))
	assert.Equal(t, 1, v.Count("p2"))
	assert.Equal(t, 0, v.Count("nope"))

	dropped := v.Sweep(t0.Add(6*time.Second+time.Millisecond), 5*time.Second)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, map[string]int{"p1": 1}, v.Counts())
}

func TestRoster_Online(t *testing.T) {
	r := NewRoster()
	r.Touch(feed.Profile{Handle: "A"}, "o1", t0)

	assert.True(t, r.Online("o1"))
	assert.False(t, r.Online("o2"))

	r.Sweep(t0.Add(time.Minute), time.Second)
	assert.False(t, r.Online("o1"))
}
