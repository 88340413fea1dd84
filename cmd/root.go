// Package cmd defines the CLI of elm-starter.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configFile string
	debug      bool
}

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it with a fake.
var newApp = buildApp

func newRootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:   "elm-starter",
		Short: "Develop, build and prerender Elm single page applications.",
		Long: `elm-starter bootstraps the project conf from the Elm worker in
src-elm-starter, then scaffolds the dev tree, runs the dev servers and builds
a minified, prerendered static site ready to be served or uploaded.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
		RunE: run(Commands.Start),
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newCommand("boot", "Bootstrap the conf from the Elm worker", Commands.Boot),
		newCommand("start", "Generate dev files, then run the dev server and the starter watcher", Commands.Start),
		newCommand("generateDevFiles", "Regenerate the dev tree", Commands.GenerateDevFiles),
		newCommand("build", "Run the static server and build the prerendered site", Commands.Build),
		newCommand("buildExpectingTheServerRunning", "Build against an already running static server",
			Commands.BuildExpectingTheServerRunning),
		newCommand("serverBuild", "Serve the finished build", Commands.ServerBuild),
		newCommand("serverDev", "Run the dev server", Commands.ServerDev),
		newCommand("serverStatic", "Run the static server used for prerendering", Commands.ServerStatic),
		newCommand("watchStartElm", "Regenerate dev files when the starter sources change", Commands.WatchStartElm),
		newUploadCmd(),
	)
	return cmd
}

func newCommand(use, short string, fn func(Commands, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE:  run(fn),
	}
}

func run(fn func(Commands, context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		return fn(appInstance.Commands(), cmd.Context())
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI until the command finishes or a signal arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if logger := zap.L(); logger.Core().Enabled(zap.FatalLevel) {
			logger.Fatal("command failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
