package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igdownloader",
	Short: "Download images and videos from an Instagram profile",
	Long: `igdownloader fetches a user's media feed through the Instagram GraphQL
API and downloads the posted images and videos to disk.

Features:
  - Single images, single videos, and carousel posts
  - Video quality selection (highest, medium, lowest)
  - Deterministic file naming for repeatable runs
  - Skips files that were already downloaded
  - Automatic retry with exponential backoff
  - Secure credential storage using the system keychain`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.igdownloader.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`igdownloader {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
