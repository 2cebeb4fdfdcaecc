package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	syncx "github.com/mberzins/envault/internal/client/sync"
	"github.com/spf13/cobra"
)

func printSyncResult(res *syncx.Result) {
	if res.Replayed > 0 {
		fmt.Printf("  replayed %d queued operation(s)\n", res.Replayed)
	}
	if res.PushedFiles > 0 || res.PushedVersions > 0 || res.PushedRollbacks > 0 {
		fmt.Printf("  pushed %d file(s), %d version(s), %d rollback(s)\n",
			res.PushedFiles, res.PushedVersions, res.PushedRollbacks)
	}
	if res.PulledFiles > 0 {
		fmt.Printf("  pulled %d file(s)\n", res.PulledFiles)
	}
	for _, fe := range res.FileErrors {
		fmt.Printf("  %s %s: %v\n", color.RedString("✗"), fe.Name, fe.Err)
	}
	if res.Queued {
		fmt.Printf("%s server unreachable, sync queued for next run\n", color.YellowString("!"))
		return
	}
	fmt.Printf("%s in sync\n", color.GreenString("✓"))
}

func runSync(ctx context.Context, a *app, push, pull bool) error {
	sess, err := a.session(ctx)
	if err != nil {
		return err
	}
	project, err := a.activeProject(ctx, sess)
	if err != nil {
		return err
	}

	res := &syncx.Result{}
	switch {
	case push && pull:
		res, err = a.sync.Sync(ctx, sess, project)
	case push:
		if err = a.sync.ReplayPending(ctx, sess, res); err == nil {
			err = a.sync.Push(ctx, sess, project, res)
		}
	case pull:
		err = a.sync.Pull(ctx, sess, project, res)
	}
	// The transport may have rotated tokens mid-run, even on a run that
	// ultimately failed; persist before handling the error.
	if saveErr := a.st.Session.Save(ctx, sess); saveErr != nil && err == nil {
		err = saveErr
	}
	if err != nil {
		return a.remoteErr(ctx, err)
	}
	printSyncResult(res)
	return nil
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued operations, push local history, pull remote state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), a, true, true)
		},
	}
}

func newPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push local files, versions, and rollback records to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), a, true, false)
		},
	}
}

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Pull remote files and histories into the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), a, false, true)
		},
	}
}
