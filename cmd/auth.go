// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"mindstudio/local/internal/auth"
	"mindstudio/local/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var setKeyNoVerify bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the MindStudio API key",
}

// loginCmd runs the device-link flow: the user approves this device in the browser
// and the issued API key is stored in the OS keychain.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate via browser and link this device",
	Long: `The login command opens a MindStudio sign-in link in your browser. Once you approve
the device, an API key is issued and stored in the OS keychain.

If MINDSTUDIO_API_KEY is set it is used instead of the stored key.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newManifest(cfg)
		if err != nil {
			return err
		}
		svc := newAuthService(m, newLogger(cfg))

		if id, ok, _ := svc.WhoAmI(ctx); ok && !id.Offline {
			fmt.Printf("Already logged in as %s (%s)\n", id.Account, id.Source)
			return nil
		}

		authURL, deviceID, pollEvery, err := svc.StartLogin(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Open this link to complete login:")
		fmt.Printf("%s\n\n", authURL)
		openBrowser(authURL)

		var stopOnce sync.Once
		spin := startInlineSpinner(os.Stdout, "Waiting for verification", stickFrames, 120*time.Millisecond)
		stopSpinner := func() { stopOnce.Do(spin) }
		defer stopSpinner()

		if pollEvery <= 0 {
			pollEvery = 3
		}
		ticker := time.NewTicker(time.Duration(pollEvery) * time.Second)
		defer ticker.Stop()

		for {
			account, ok, err := svc.PollLogin(ctx, deviceID)
			if errors.Is(err, auth.ErrNoStore) {
				return err
			}
			if err == nil && ok {
				stopSpinner()
				pterm.Success.Printf("Logged in as %s\n", account)
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("login timed out")
			case <-ticker.C:
			}
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newManifest(cfg)
		if err != nil {
			return err
		}
		envSet, err := newAuthService(m, newLogger(cfg)).Logout()
		if err != nil {
			return err
		}
		fmt.Println("✅ The stored API key has been removed")
		if envSet {
			pterm.Warning.Printf("%s is still set in the environment and will be used\n", auth.EnvAPIKey)
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account behind the active API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newManifest(cfg)
		if err != nil {
			return err
		}
		id, ok, err := newAuthService(m, newLogger(cfg)).WhoAmI(cmd.Context())
		if !ok {
			if err != nil {
				return err
			}
			fmt.Println("🔒 You're not logged in yet!")
			fmt.Println("   Run 'mindstudio-local auth login' to get started.")
			return nil
		}
		fmt.Printf("👤 Current user: %s (key from %s)\n", id.Account, id.Source)
		if id.Offline {
			pterm.Warning.Println("MindStudio could not be reached; showing the last known account")
		}
		return nil
	},
}

// setKeyCmd stores an API key created in the MindStudio dashboard.
var setKeyCmd = &cobra.Command{
	Use:   "set-key [api-key]",
	Short: "Store an API key directly",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newManifest(cfg)
		if err != nil {
			return err
		}

		key := ""
		if len(args) == 1 {
			key = args[0]
		} else if key, err = promptSecret("API key: "); err != nil {
			return err
		}

		account, err := newAuthService(m, newLogger(cfg)).SetKey(cmd.Context(), key, !setKeyNoVerify)
		if err != nil {
			return err
		}
		pterm.Success.Printf("API key saved for %s\n", account)
		return nil
	},
}

// promptSecret reads a line without echo when stdin is a terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		terminal.ClearPrompt(len(prompt))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// openBrowser attempts to open the provided URL in the user's default browser.
// The function starts the browser process but does not wait for it to complete.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

func init() {
	setKeyCmd.Flags().BoolVar(&setKeyNoVerify, "no-verify", false, "Store the key without checking it with MindStudio")
	authCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, setKeyCmd)
	rootCmd.AddCommand(authCmd)
}
