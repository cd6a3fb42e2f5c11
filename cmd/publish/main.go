// Package main is the entry point for the publish CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chopibot/internal/publish"
	"github.com/capitalize-ai/chopibot/pkg/logger"
)

var (
	profilePath string
	rootDir     string
	archivePath string
	endpoint    string
	excludes    []string
	noProgress  bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "publish",
	Short: "Zip the bot and upload it to the deployment endpoint",
	Long: `publish archives the bot's source tree (skipping .git and node_modules
by default) and uploads it with an HTTP PUT using basic auth. Credentials and
the endpoint come from a YAML profile overlaid by PUBLISH_* environment
variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPublish,
}

func init() {
	rootCmd.Flags().StringVar(&profilePath, "profile", "publish.yml", "publish profile path")
	rootCmd.Flags().StringVar(&rootDir, "root", "", "directory to archive (default from profile)")
	rootCmd.Flags().StringVar(&archivePath, "archive", "", "archive path (default ../<name>.zip)")
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "", "deployment endpoint URL")
	rootCmd.Flags().StringSliceVar(&excludes, "exclude", nil, "additional glob patterns to exclude")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the upload progress bar")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func main() {
	exitOnError(rootCmd.Execute())
}

func runPublish(cmd *cobra.Command, args []string) error {
	level := "warn"
	if verbose {
		level = "info"
	}
	log, err := logger.New(level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	profile, err := publish.LoadProfile(profilePath)
	if err != nil {
		return err
	}
	if rootDir != "" {
		profile.Root = rootDir
	}
	if archivePath != "" {
		profile.Archive = archivePath
	}
	if endpoint != "" {
		profile.Endpoint = endpoint
	}
	profile.Exclude = append(profile.Exclude, excludes...)

	var progress io.Writer
	if profile.Progress && !noProgress {
		progress = cmd.ErrOrStderr()
	}

	pub, err := publish.NewPublisher(profile, progress, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pub.Publish(ctx, func(err error) {
		if err != nil {
			log.Error("publish failed", zap.String("profile", profile.Name), zap.Error(err))
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s published\n", profile.Name)
	})
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
