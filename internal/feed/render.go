package feed

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// WriteTree renders the forest as an indented outline, one post per line.
func WriteTree(w io.Writer, posts []Post) error {
	var err error
	Walk(posts, func(p *Post, depth int) bool {
		_, err = fmt.Fprintf(w, "%s- [%s] @%s: %s%s (likes %d, shares %d, views %d) %s\n",
			strings.Repeat("  ", depth),
			p.ID,
			p.Author.Handle,
			p.Content,
			mediaSuffix(p.Media),
			p.Likes, p.Shares, p.Views,
			p.Timestamp.UTC().Format(time.RFC3339),
		)
		return err == nil
	})
	return err
}

// WriteMessages renders the message log in order.
func WriteMessages(w io.Writer, log []DirectMessage) error {
	for _, m := range log {
		ts := time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339)
		if _, err := fmt.Fprintf(w, "- [%s] %s -> %s: %s %s\n",
			m.ID, m.SenderHandle, m.ReceiverHandle, m.Content, ts); err != nil {
			return err
		}
	}
	return nil
}

func mediaSuffix(m *Media) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf(" <%s %s>", m.Kind, m.URL)
}
