package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lobbysync/internal/identity"
)

// WhoamiOptions holds flags for the whoami command.
type WhoamiOptions struct {
	*RootOptions
	StoreOptions
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WhoamiOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the local identity, creating it if needed",
		Long: `Print the identity stored in the database under the identity key.

A new identity is generated and saved when none exists yet, exactly as a
replica does on first start.

Example:
  lobbysync whoami --db ./feed.db
  lobbysync whoami --db ./feed.db --identity-key tab-2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showIdentity(opts, cmd)
		},
	}
	opts.StoreOptions.bind(cmd)
	return cmd
}

func showIdentity(opts *WhoamiOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	sess, err := openSession(&opts.StoreOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	me, err := identity.NewManager(sess.snaps).Get(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read identity", err).WithKind(CodeStore)
	}

	return opts.formatter(cmd).Success(me, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "@%s (%s)\nbio: %s\njoined: %s\nfollowing: %v\nfollowers: %v\n",
			me.Handle, me.Name, me.Bio, me.JoinDate, me.Following, me.Followers)
		return err
	})
}
