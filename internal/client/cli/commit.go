package cli

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fatih/color"
	"github.com/mberzins/envault/internal/client/services"
	"github.com/spf13/cobra"
)

func newAddCmd(a *app) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "add [file...]",
		Short: "Stage changed env files for the next commit",
		Long:  "Stages the named files, or every detected change when no files are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			project, err := a.activeProject(ctx, sess)
			if err != nil {
				return err
			}
			changes, err := a.staging.DetectChanges(ctx, sess, project)
			if err != nil {
				return err
			}

			if len(args) > 0 {
				var selected []services.Change
				for _, ch := range changes {
					if slices.Contains(args, ch.Name) {
						selected = append(selected, ch)
					}
				}
				if len(selected) != len(args) {
					return fmt.Errorf("some named files have no changes")
				}
				changes = selected
			}

			if err := a.staging.Stage(ctx, sess, project, changes, message); err != nil {
				return err
			}
			for _, ch := range changes {
				if ch.State != services.FileMissing {
					fmt.Printf("  staged %s\n", ch.Name)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}

func newCommitCmd(a *app) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the staged files, one version per file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			project, err := a.activeProject(ctx, sess)
			if err != nil {
				return err
			}
			res, err := a.staging.CommitStaged(ctx, sess, project, message)
			if err != nil {
				return err
			}
			for _, name := range res.Committed {
				fmt.Printf("%s committed %s\n", color.GreenString("✓"), name)
			}
			for _, fe := range res.Failed {
				fmt.Printf("%s %s: %v (still staged)\n", color.RedString("✗"), fe.Name, fe.Err)
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d files failed", len(res.Failed), len(res.Failed)+len(res.Committed))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message (overrides the staged one)")
	return cmd
}

func newRevertCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revert <file> <version>",
		Short: "Restore a file to an earlier version as a new commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			project, err := a.activeProject(ctx, sess)
			if err != nil {
				return err
			}
			file, err := a.st.EnvFiles.GetByName(ctx, project.ID, args[0])
			if err != nil {
				return fmt.Errorf("file %s: %w", args[0], err)
			}

			diskPath := filepath.Join(project.DirectoryPath, file.Name)
			version, err := a.engine.Rollback(ctx, sess, file, args[1], reason, diskPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s reverted %s to %s (new version %s)\n",
				color.GreenString("✓"), file.Name, args[1], version.VersionToken)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the rollback happened")
	return cmd
}
