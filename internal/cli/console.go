package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/lobbysync/internal/engine"
	"github.com/roach88/lobbysync/internal/feed"
	"github.com/roach88/lobbysync/internal/identity"
)

const consoleHelp = `Commands:
  post TEXT                 publish a post
  media KIND URL TEXT       publish a post with an image, video, or gif
  reply ID TEXT             reply to a post
  delete ID                 delete a post and its replies
  like ID | share ID        toggle your like or share
  view ID                   record a view
  watch [ID]                announce that you are watching ID (no ID stops)
  dm HANDLE TEXT            send a direct message
  follow HANDLE             toggle following HANDLE
  rename HANDLE             change your handle
  bio TEXT                  change your bio
  feed                      show the feed
  inbox                     show your direct messages
  who                       show who is online
  me                        show your profile
  quit                      stop the replica`

// console reads commands and prints notifications for one replica.
type console struct {
	r         *engine.Replica
	heartbeat time.Duration

	mu       sync.Mutex
	out      io.Writer
	watching string

	done chan struct{}
}

func newConsole(r *engine.Replica, out io.Writer, heartbeat time.Duration) *console {
	return &console{r: r, out: out, heartbeat: heartbeat, done: make(chan struct{})}
}

// serve runs until in is exhausted, "quit" is read, or ctx is cancelled.
func (c *console) serve(ctx context.Context, in io.Reader) {
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.printNotifications(ctx) }()
	go func() { defer wg.Done(); c.keepWatching(ctx) }()
	// The helpers exit on ctx, so cancel before waiting for them.
	defer func() {
		cancel()
		wg.Wait()
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Error("reading console input", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || c.exec(ctx, line) {
				return
			}
		}
	}
}

// wait blocks until serve has returned.
func (c *console) wait() {
	<-c.done
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) render(fn func(w io.Writer) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(c.out); err != nil {
		slog.Error("rendering console output", "error", err)
	}
}

func (c *console) printNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-c.r.Notifications():
			switch n.Kind {
			case engine.NotifyMention:
				c.printf("* mention from @%s in [%s]: %s\n", n.From, n.PostID, n.Content)
			case engine.NotifyDirectMessage:
				c.printf("* message from @%s: %s\n", n.From, n.Content)
			}
		}
	}
}

// keepWatching repeats the live-view heartbeat for the watched post.
func (c *console) keepWatching(ctx context.Context) {
	t := time.NewTicker(c.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			id := c.watching
			c.mu.Unlock()
			if id == "" {
				continue
			}
			if err := c.r.HeartbeatView(ctx, id); err != nil {
				slog.Debug("live view heartbeat failed", "post_id", id, "error", err)
			}
		}
	}
}

// exec runs one command line. It returns true when the console should stop.
func (c *console) exec(ctx context.Context, line string) bool {
	cmd, rest := cut(strings.TrimSpace(line))
	if cmd == "" {
		return false
	}

	var err error
	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return true

	case "help":
		c.printf("%s\n", consoleHelp)

	case "post":
		var p feed.Post
		if p, err = c.r.CreatePost(ctx, rest, nil); err == nil {
			c.printf("posted %s\n", p.ID)
		}

	case "media":
		kind, tail := cut(rest)
		url, text := cut(tail)
		media := &feed.Media{Kind: feed.MediaKind(strings.ToLower(kind)), URL: url}
		var p feed.Post
		if p, err = c.r.CreatePost(ctx, text, media); err == nil {
			c.printf("posted %s\n", p.ID)
		}

	case "reply":
		parent, text := cut(rest)
		var p feed.Post
		if p, err = c.r.CreateReply(ctx, parent, text, nil); err == nil {
			c.printf("replied %s\n", p.ID)
		}

	case "delete":
		if err = c.r.DeletePost(ctx, rest); err == nil {
			c.printf("deleted %s\n", rest)
		}

	case "like", "share", "view":
		m, _ := feed.ParseMetric(strings.ToLower(cmd))
		if err = c.r.ToggleMetric(ctx, rest, m); err == nil {
			c.printf("%s %s: ok\n", m, rest)
		}

	case "watch":
		c.mu.Lock()
		c.watching = rest
		c.mu.Unlock()
		if rest == "" {
			c.printf("stopped watching\n")
			break
		}
		if err = c.r.HeartbeatView(ctx, rest); err == nil {
			c.printf("watching %s\n", rest)
		}

	case "dm":
		to, text := cut(rest)
		var m feed.DirectMessage
		if m, err = c.r.SendMessage(ctx, strings.TrimPrefix(to, "@"), text); err == nil {
			c.printf("sent %s\n", m.ID)
		}

	case "follow":
		handle := strings.TrimPrefix(rest, "@")
		var action feed.FollowAction
		if action, err = c.r.ToggleFollow(ctx, handle); err == nil {
			c.printf("%s @%s\n", action, handle)
		}

	case "rename":
		handle := strings.TrimPrefix(rest, "@")
		var p feed.Profile
		if p, err = c.r.UpdateProfile(ctx, identity.Patch{Handle: &handle}); err == nil {
			c.printf("you are now @%s\n", p.Handle)
		}

	case "bio":
		bio := rest
		if _, err = c.r.UpdateProfile(ctx, identity.Patch{Bio: &bio}); err == nil {
			c.printf("bio updated\n")
		}

	case "feed":
		v := c.r.View()
		if len(v.Posts) == 0 {
			c.printf("(empty feed)\n")
			break
		}
		c.render(func(w io.Writer) error { return feed.WriteTree(w, v.Posts) })

	case "inbox":
		v := c.r.View()
		inbox := v.Inbox(v.Me.Handle)
		if len(inbox) == 0 {
			c.printf("(no messages)\n")
			break
		}
		c.render(func(w io.Writer) error { return feed.WriteMessages(w, inbox) })

	case "who":
		v := c.r.View()
		c.printf("state: %s\n", v.State)
		for _, rec := range v.Online {
			c.printf("@%s (%s) last seen %s\n", rec.Profile.Handle, rec.Origin,
				rec.LastSeen.UTC().Format(time.RFC3339))
		}

	case "me":
		me := c.r.View().Me
		c.printf("@%s %s\nbio: %s\njoined: %s\nfollowing %d, followers %d\n",
			me.Handle, me.Name, me.Bio, me.JoinDate, len(me.Following), len(me.Followers))

	default:
		c.printf("unknown command %q, type \"help\"\n", cmd)
	}

	if err != nil {
		c.printf("error: %v\n", err)
	}
	return false
}

// cut splits s at the first run of whitespace.
func cut(s string) (head, tail string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}
