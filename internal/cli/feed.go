package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lobbysync/internal/feed"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	StoreOptions
}

// FeedOutput is the persisted state printed by the feed command.
type FeedOutput struct {
	Posts    []feed.Post          `json:"posts"`
	Messages []feed.DirectMessage `json:"messages"`
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the persisted feed and message log",
		Long: `Print the feed and direct-message log last saved by a replica.

The database is only read; no replica is started.

Example:
  lobbysync feed --db ./feed.db
  lobbysync feed --db ./feed.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showFeed(opts, cmd)
		},
	}
	opts.StoreOptions.bind(cmd)
	return cmd
}

func showFeed(opts *FeedOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	sess, err := openSession(&opts.StoreOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	posts, _, err := sess.snaps.LoadFeed(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read feed", err).WithKind(CodeStore)
	}
	messages, _, err := sess.snaps.LoadMessages(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read messages", err).WithKind(CodeStore)
	}
	if posts == nil {
		posts = []feed.Post{}
	}
	if messages == nil {
		messages = []feed.DirectMessage{}
	}

	out := FeedOutput{Posts: posts, Messages: messages}
	return opts.formatter(cmd).Success(out, func(w io.Writer) error {
		fmt.Fprintf(w, "posts (%d):\n", feed.Size(posts))
		if err := feed.WriteTree(w, posts); err != nil {
			return err
		}
		fmt.Fprintf(w, "messages (%d):\n", len(messages))
		return feed.WriteMessages(w, messages)
	})
}
