package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mberzins/envault/internal/client/services"
	"github.com/mberzins/envault/internal/client/vcs"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/filex"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show changed env files in the current project",
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
			changes, err := a.staging.DetectChanges(ctx, sess, project)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				fmt.Println("nothing to commit, working tree clean")
				return nil
			}
			for _, ch := range changes {
				switch ch.State {
				case services.FileNew:
					fmt.Printf("  %s %s\n", color.GreenString("new:     "), ch.Name)
				case services.FileModified:
					fmt.Printf("  %s %s\n", color.YellowString("modified:"), ch.Name)
				case services.FileMissing:
					fmt.Printf("  %s %s\n", color.RedString("missing: "), ch.Name)
				}
			}
			return nil
		},
	}
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <file>",
		Short: "Show line changes between the working file and its last commit",
		Args:  cobra.ExactArgs(1),
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

			head, err := a.engine.HeadPlaintext(ctx, sess, file)
			if errors.Is(err, common.ErrNotFound) {
				head = nil
			} else if err != nil {
				return err
			}

			var disk []byte
			path := filepath.Join(project.DirectoryPath, file.Name)
			if filex.Exists(path) {
				if disk, err = filex.ReadFile(path); err != nil {
					return err
				}
			}

			for _, line := range vcs.Diff(string(head), string(disk)) {
				switch line.Kind {
				case vcs.DiffAdded:
					fmt.Println(color.GreenString("+ " + line.Text))
				case vcs.DiffRemoved:
					fmt.Println(color.RedString("- " + line.Text))
				default:
					fmt.Println("  " + line.Text)
				}
			}
			return nil
		},
	}
}

func newLogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show the project's version history, newest first",
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
			entries, err := a.engine.Log(ctx, project.ID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no commits yet")
				return nil
			}
			for _, e := range entries {
				msg := e.CommitMessage
				if msg == "" {
					msg = "(no message)"
				}
				fmt.Printf("%s  %s  %s  %s  %s\n",
					color.YellowString(e.VersionToken),
					e.CreatedAt.Local().Format("2006-01-02 15:04"),
					color.CyanString(e.FileName),
					e.AuthorEmail,
					msg)
			}
			return nil
		},
	}
}
