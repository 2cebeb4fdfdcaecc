// Package cli assembles the envault command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mberzins/envault/internal/client/config"
	"github.com/mberzins/envault/internal/client/models"
	"github.com/mberzins/envault/internal/client/remote"
	"github.com/mberzins/envault/internal/client/services"
	"github.com/mberzins/envault/internal/client/store"
	syncx "github.com/mberzins/envault/internal/client/sync"
	"github.com/mberzins/envault/internal/client/vcs"
	"github.com/mberzins/envault/internal/common"
	"github.com/mberzins/envault/internal/logging"
	"github.com/spf13/cobra"
)

// app carries the wired services shared by all commands. It is built once in
// the root command's PersistentPreRunE, after flags are parsed.
type app struct {
	configPath string
	serverURL  string
	dbPath     string
	verbose    bool

	cfg      *config.Config
	st       *store.Store
	log      logging.Logger
	auth     *services.AuthService
	projects *services.ProjectService
	staging  *services.StagingService
	engine   *vcs.Engine
	sync     *syncx.Reconciler
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.ServerURL = a.serverURL
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("no database path configured: %w", common.ErrValidation)
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = logging.NewTextLogger(os.Stderr, level)

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	a.st = st

	rc := remote.NewHTTPClient(cfg.ServerURL)
	a.auth = services.NewAuthService(st, rc, a.log)
	a.projects = services.NewProjectService(st, rc, a.log)
	a.engine = vcs.NewEngine(st, a.log)
	a.staging = services.NewStagingService(st, a.engine, a.log)
	a.sync = syncx.New(st, rc, a.log)
	return nil
}

func (a *app) close() {
	if a.st != nil {
		_ = a.st.Close()
	}
}

// session loads the persisted session for a command that needs one.
func (a *app) session(ctx context.Context) (*models.Session, error) {
	return a.auth.CurrentSession(ctx)
}

// activeProject resolves the project registered for the working directory.
func (a *app) activeProject(ctx context.Context, sess *models.Session) (*models.Project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return a.projects.Resolve(ctx, sess, cwd)
}

// remoteErr translates an expired session into a logout plus a clear
// instruction; everything else passes through.
func (a *app) remoteErr(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrAuthExpired) {
		_ = a.auth.Logout(ctx)
		return fmt.Errorf("session expired, run 'envault login' again")
	}
	return err
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "envault",
		Short:         "Versioned, encrypted .env files with project-level sync",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "sync server base URL")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the local database")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newInitCmd(a),
		newAddCmd(a),
		newStatusCmd(a),
		newDiffCmd(a),
		newLogCmd(a),
		newCommitCmd(a),
		newRevertCmd(a),
		newRenameCmd(a),
		newRmCmd(a),
		newSyncCmd(a),
		newPushCmd(a),
		newPullCmd(a),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	root := NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
