package feed

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTree(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	posts := []Post{{
		ID:        "p1",
		Author:    Profile{Handle: "Player_1"},
		Content:   "drop in",
		Media:     &Media{Kind: MediaGIF, URL: "g.gif"},
		Timestamp: at,
		Likes:     2,
		Views:     1,
		Replies: []Post{{
			ID:        "r1",
			Author:    Profile{Handle: "Player_2"},
			Content:   "ok",
			Timestamp: at.Add(time.Second),
		}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTree(&buf, posts))
	assert.Equal(t,
		"- [p1] @Player_1: drop in <gif g.gif> (likes 2, shares 0, views 1) 2026-03-01T12:00:00Z\n"+
			"  - [r1] @Player_2: ok (likes 0, shares 0, views 0) 2026-03-01T12:00:01Z\n",
		buf.String())
}

func TestWriteMessages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessages(&buf, []DirectMessage{{
		ID:             "m1",
		SenderHandle:   "Player_1",
		ReceiverHandle: "Player_2",
		Content:        "gg",
		Timestamp:      0,
	}}))
	assert.Equal(t, "- [m1] Player_1 -> Player_2: gg 1970-01-01T00:00:00Z\n", buf.String())
}
