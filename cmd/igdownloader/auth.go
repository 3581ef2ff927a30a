package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"igdownloader/pkg/auth"
	"igdownloader/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram credentials",
	Long: `Manage stored Instagram credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store Instagram credentials securely",
	Long: `Store Instagram credentials securely in the system keychain or encrypted file.

You will be prompted for:
  - Instagram username (if not provided)
  - Session ID (from the sessionid cookie)
  - CSRF Token (from the csrftoken cookie)
  - User ID (from the ds_user_id cookie)
  - User Agent (optional, press Enter for default)

To get these values:
1. Log into Instagram in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Copy the sessionid, csrftoken and ds_user_id values`,
	Example: `  # Interactive login
  igdownloader auth login

  # Login with username
  igdownloader auth login myusername`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove stored credentials",
	Long:  `Remove stored Instagram credentials for an account.`,
	Args:  cobra.ExactArgs(1),
	Run:   runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored Instagram accounts with sanitized credential information.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if username == "" {
		fmt.Print("Instagram username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read username", err.Error())
			os.Exit(1)
		}
		username = strings.TrimSpace(input)
	}

	if username == "" {
		ui.PrintError("Username is required")
		os.Exit(1)
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Printf("Account '%s' already exists. Update credentials? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\nEnter your cookie values (they will be hidden as you type):")

	sessionID := promptSecret(reader, "sessionid cookie value", func(v string) string {
		if len(v) < 20 {
			return "It should be a long string, usually containing % symbols."
		}
		return ""
	})

	csrfToken := promptSecret(reader, "csrftoken cookie value", func(v string) string {
		if len(v) < 20 || len(v) > 50 {
			return "It should be around 32 characters long."
		}
		return ""
	})

	dsUserID := promptSecret(reader, "ds_user_id cookie value", func(v string) string {
		if v == "" {
			return "It should be a numeric user ID."
		}
		return ""
	})

	fmt.Print("\nUser Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	account := &auth.Account{
		Username:     username,
		SessionID:    sessionID,
		CSRFToken:    csrfToken,
		DSUserID:     dsUserID,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}

	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", username))
	fmt.Println("\nQuick start:")
	fmt.Printf("  igdownloader download %s\n", username)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	username := args[0]
	if err := manager.Delete(username); err != nil {
		ui.PrintError("Failed to remove credentials", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Removed credentials for %s", username))
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		os.Exit(1)
	}

	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Run 'igdownloader auth login' first.")
		return
	}

	for _, account := range accounts {
		ui.PrintInfo(account.Username, fmt.Sprintf("sessionid %s, stored %s",
			maskSecret(account.SessionID), account.LastModified.Format("2006-01-02 15:04")))
	}
}

// promptSecret reads a hidden value from the terminal, re-prompting while
// the validator rejects it.
func promptSecret(reader *bufio.Reader, label string, validate func(string) string) string {
	for {
		fmt.Printf("%s: ", label)
		value, err := readPassword()
		if err != nil {
			ui.PrintError("Failed to read input", err.Error())
			os.Exit(1)
		}

		if msg := validate(value); msg != "" {
			fmt.Printf("\nThat doesn't look like a valid value. %s\n", msg)
			fmt.Print("Try again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		fmt.Println()
		return value
	}
}

// readPassword reads input without echoing it to the terminal.
func readPassword() (string, error) {
	data, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
