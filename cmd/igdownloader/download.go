package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"igdownloader/pkg/auth"
	"igdownloader/pkg/config"
	"igdownloader/pkg/downloader"
	"igdownloader/pkg/extractor"
	"igdownloader/pkg/instagram"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/media"
	"igdownloader/pkg/ratelimit"
	"igdownloader/pkg/storage"
	"igdownloader/pkg/ui"
)

var (
	// Download command flags
	outputDir    string
	accountName  string
	videoQuality string
	noVideos     bool
	noImages     bool
	maxVideoSize int64
	maxPosts     int
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <username>",
	Short: "Download media from an Instagram user profile",
	Long: `Download all images and videos from an Instagram user's feed.

This command requires valid Instagram credentials configured through:
  - Stored credentials (use 'igdownloader auth login' to store)
  - Environment variables (IGDL_SESSION_ID, IGDL_CSRF_TOKEN, IGDL_DS_USER_ID)
  - Configuration file

Files are written under <output>/<username>/ using deterministic names, so
re-running the command downloads only media that is not yet on disk.`,
	Example: `  # Download everything using default settings
  igdownloader download johndoe

  # Images only, to a specific directory
  igdownloader download johndoe --output ./media --no-videos

  # Lowest quality videos, capped at 20 MB each
  igdownloader download johndoe --video-quality lowest --max-video-size 20

  # Stop after the 50 most recent posts
  igdownloader download johndoe --max-posts 50`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runDownload(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads (default: ./downloads)")
	downloadCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	downloadCmd.Flags().StringVar(&videoQuality, "video-quality", "", "video rendition to download (highest, medium, lowest)")
	downloadCmd.Flags().BoolVar(&noVideos, "no-videos", false, "skip video items")
	downloadCmd.Flags().BoolVar(&noImages, "no-images", false, "skip image items")
	downloadCmd.Flags().Int64Var(&maxVideoSize, "max-video-size", 0, "maximum video size in MB (0 uses the configured default)")
	downloadCmd.Flags().IntVar(&maxPosts, "max-posts", 0, "stop after this many posts (0 means no limit)")
}

func runDownload(cmd *cobra.Command, args []string) {
	username := instagram.SanitizeUsername(strings.TrimSpace(args[0]))
	if !instagram.IsValidUsername(username) {
		ui.PrintError("Invalid Instagram username", username)
		os.Exit(1)
	}

	if !quiet {
		ui.PrintInfo("Target Profile", username)
	}

	// Build flags map from command line
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if videoQuality != "" {
		flags["video-quality"] = videoQuality
	}
	if noVideos {
		flags["no-videos"] = true
	}
	if noImages {
		flags["no-images"] = true
	}
	if maxVideoSize > 0 {
		flags["max-video-size"] = maxVideoSize
	}
	if maxPosts > 0 {
		flags["max-posts"] = maxPosts
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}
	if quiet {
		flags["log-level"] = "error"
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("igdownloader starting")

	resolveCredentials(cfg, log)

	if err := cfg.ValidateCredentials(); err != nil {
		ui.PrintError("Missing Instagram credentials", err.Error())
		fmt.Println("\nTo store credentials securely, run:")
		fmt.Println("  igdownloader auth login")
		fmt.Println("\nOr set environment variables:")
		fmt.Println("  export IGDL_SESSION_ID=your_session_id")
		fmt.Println("  export IGDL_CSRF_TOKEN=your_csrf_token")
		fmt.Println("  export IGDL_DS_USER_ID=your_ds_user_id")
		os.Exit(1)
	}

	client := instagram.NewClient(cfg.Instagram, cfg.Download.DownloadTimeout, log)

	pagePacer := ratelimit.NewJitteredPacer(cfg.RateLimit.PageDelay, cfg.RateLimit.Jitter)
	itemPacer := ratelimit.NewJitteredPacer(cfg.RateLimit.RequestDelay, cfg.RateLimit.Jitter)

	ext := extractor.New(client, cfg, pagePacer, log)

	store, err := storage.NewManager(cfg.Output.BaseDirectory, username, log)
	if err != nil {
		ui.PrintError("Failed to prepare output directory", err.Error())
		os.Exit(1)
	}

	selector := media.NewSelector(cfg.Download, log)
	orch := downloader.New(client, store, selector, cfg, itemPacer, log)

	bar := ui.NewProgressBar()
	bar.SetQuiet(quiet)
	orch.SetProgress(bar)

	summary, runErr := orch.Run(ext.Feed(username))
	bar.Finish()

	printSummary(store, summary)

	if runErr != nil {
		ui.PrintError("Download stopped", runErr.Error())
		os.Exit(1)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
	ui.PrintSuccess("Download complete")
}

// resolveCredentials fills cfg.Instagram from the credential manager when the
// config and environment did not already provide a full cookie set.
func resolveCredentials(cfg *config.Config, log logger.Logger) {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("credential manager unavailable")
		return
	}

	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			ui.PrintError("Account not found", accountName)
			ui.PrintInfo("Available accounts", "Use 'igdownloader auth list' to see stored accounts")
			os.Exit(1)
		}
	} else if cfg.ValidateCredentials() == nil {
		log.Info("Using credentials from configuration")
		return
	} else {
		account, err = manager.RetrieveDefault()
		if err != nil {
			return
		}
	}

	cfg.Instagram.SessionID = account.SessionID
	cfg.Instagram.CSRFToken = account.CSRFToken
	cfg.Instagram.DSUserID = account.DSUserID
	if account.UserAgent != "" {
		cfg.Instagram.UserAgent = account.UserAgent
	}
	log.WithField("account", account.Username).Info("Using stored credentials")
	if !quiet {
		ui.PrintInfo("Using account", account.Username)
	}
}

func printSummary(store *storage.Manager, sum downloader.Summary) {
	if quiet {
		return
	}
	fmt.Println()
	ui.PrintInfo("Attempted", fmt.Sprintf("%d", sum.Attempted))
	ui.PrintInfo("Succeeded", fmt.Sprintf("%d", sum.Succeeded))
	ui.PrintInfo("Skipped", fmt.Sprintf("%d", sum.Skipped))
	ui.PrintInfo("Failed", fmt.Sprintf("%d", sum.Failed))
	ui.PrintInfo("Output", store.Dir())
	ui.PrintInfo("Files on disk", fmt.Sprintf("%d", store.FileCount("jpg", "jpeg", "png", "webp", "mp4", "mov")))
}
