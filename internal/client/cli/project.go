package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Register the current directory as a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			project, err := a.projects.Init(ctx, sess, args[0], cwd)
			if err != nil {
				return err
			}
			fmt.Printf("%s initialized project %s in %s\n",
				color.GreenString("✓"), project.Name, project.DirectoryPath)
			return nil
		},
	}
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a tracked env file",
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
			if err := a.projects.RenameFile(ctx, sess, project, args[0], args[1]); err != nil {
				return a.remoteErr(ctx, err)
			}
			fmt.Printf("%s renamed %s to %s\n", color.GreenString("✓"), args[0], args[1])
			return nil
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	var wholeProject bool

	cmd := &cobra.Command{
		Use:   "rm [file]",
		Short: "Untrack a file, or delete the whole project with --project",
		Args:  cobra.MaximumNArgs(1),
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

			if wholeProject {
				if len(args) != 0 {
					return fmt.Errorf("--project takes no file argument")
				}
				if err := a.projects.RemoveProject(ctx, sess, project); err != nil {
					return a.remoteErr(ctx, err)
				}
				fmt.Printf("%s deleted project %s\n", color.GreenString("✓"), project.Name)
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("file name required")
			}
			if err := a.projects.RemoveFile(ctx, sess, project, args[0]); err != nil {
				return a.remoteErr(ctx, err)
			}
			fmt.Printf("%s untracked %s (the file on disk is kept)\n", color.GreenString("✓"), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&wholeProject, "project", false, "delete the whole project and its history")
	return cmd
}
