package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/roster/pkg/client"
	"github.com/jmerrifield20/roster/pkg/directory"
	"github.com/jmerrifield20/roster/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	timeout   time.Duration
)

const defaultServerURL = "http://localhost:8080"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "members",
	Short: "Member directory CLI",
	Long: `members is the command-line interface for the member directory.

Browse the directory, search members, and edit your own profile and
picture. Sign in through the web app, then store the session token with
"members login --token <token>" or export ROSTER_SESSION.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(configDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		_ = viper.BindEnv("session_token", "ROSTER_SESSION")
		_ = viper.BindEnv("server_url", "ROSTER_SERVER")
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = defaultServerURL
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.roster/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "directory server URL (default "+defaultServerURL+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")

	rootCmd.AddCommand(directoryCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(pictureCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(versionCmd)
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".roster")
}

func newClient() (*client.Client, error) {
	return client.New(serverURL,
		client.WithTimeout(timeout),
		client.WithSessionToken(viper.GetString("session_token")),
	)
}

// newSession loads the signed-in identity. It fails when nobody is signed in.
func newSession(ctx context.Context, c *client.Client) (*session.Context, error) {
	sc := session.New(c)
	if err := sc.Load(ctx); err != nil {
		return nil, fmt.Errorf("check session: %s", client.Message(err))
	}
	if !sc.IsAuthenticated() {
		return nil, errors.New("not signed in: run \"members login --token <token>\" first")
	}
	return sc, nil
}

// ── directory ────────────────────────────────────────────────────────────────

var (
	dirSort   string
	dirFormat string
	dirLang   string
)

var directoryCmd = &cobra.Command{
	Use:     "directory",
	Aliases: []string{"ls"},
	Short:   "List every member",
	Long: `List the member directory.

  members directory                   # newest year first
  members directory --sort year-oldest
  members directory --sort name --lang fr`,
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := directory.ParseOrder(dirSort)
		if err != nil {
			return err
		}
		lang, err := language.Parse(dirLang)
		if err != nil {
			return fmt.Errorf("invalid --lang %q: %w", dirLang, err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		m := directory.New(c, lang)
		if err := m.Load(cmd.Context()); err != nil {
			return errors.New(client.Message(err))
		}
		m.SortBy(order)
		return printEntries(m.Entries(), dirFormat)
	},
}

func init() {
	directoryCmd.Flags().StringVar(&dirSort, "sort", string(directory.DefaultOrder), "Sort order: year-latest, year-oldest or name")
	directoryCmd.Flags().StringVar(&dirFormat, "format", "text", "Output format: text or json")
	directoryCmd.Flags().StringVar(&dirLang, "lang", "en", "Language for name collation")
}

// ── search ───────────────────────────────────────────────────────────────────

var searchFormat string

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search members by name, interest or emoji",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		users, err := c.SearchMembers(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return errors.New(client.Message(err))
		}
		entries := make([]directory.Entry, len(users))
		for i, u := range users {
			entries[i] = directory.Entry{Summary: u}
		}
		if len(entries) == 0 && searchFormat != "json" {
			fmt.Println("No members found.")
			return nil
		}
		return printEntries(entries, searchFormat)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func printEntries(entries []directory.Entry, format string) error {
	if format == "json" {
		rows := make([]client.Summary, len(entries))
		for i, e := range entries {
			rows[i] = e.Summary
		}
		return printJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tYEAR\tBADGES\tINTERESTS\tID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Label(),
			e.YearLabel(),
			strings.Join(e.Badges(), " "),
			strings.Join(e.InterestCards(), ", "),
			e.ID,
		)
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── whoami / login / logout ──────────────────────────────────────────────────

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in member",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		sc, err := newSession(cmd.Context(), c)
		if err != nil {
			return err
		}
		id, _ := sc.Identity()
		fmt.Printf("Name:  %s\n", id.DisplayName)
		fmt.Printf("Email: %s\n", id.Email)
		fmt.Printf("ID:    %s\n", id.ID)
		if id.IsAdmin {
			fmt.Println("Role:  admin")
		}
		return nil
	},
}

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session token for later commands",
	Long: `login verifies a session token and saves it to the config file.

Sign in with Google in the browser first:

  ` + defaultServerURL + `/auth/google

then copy the roster_session cookie value and run:

  members login --token <token>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginToken == "" {
			c, err := newClient()
			if err != nil {
				return err
			}
			fmt.Printf("Sign in at %s, then rerun with --token.\n", c.GoogleSignInURL())
			return nil
		}
		c, err := client.New(serverURL, client.WithTimeout(timeout), client.WithSessionToken(loginToken))
		if err != nil {
			return err
		}
		sc, err := newSession(cmd.Context(), c)
		if err != nil {
			return err
		}
		viper.Set("server_url", serverURL)
		viper.Set("session_token", loginToken)
		path, err := writeConfig()
		if err != nil {
			return err
		}
		id, _ := sc.Identity()
		fmt.Printf("✓ Signed in as %s (%s)\n", id.DisplayName, id.Email)
		fmt.Printf("  Token saved to %s\n", path)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "session token (roster_session cookie value)")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Logout(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: server logout failed: %s\n", client.Message(err))
		}
		viper.Set("session_token", "")
		if _, err := writeConfig(); err != nil {
			return err
		}
		fmt.Println("✓ Signed out")
		return nil
	},
}

func writeConfig() (string, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("chmod config: %w", err)
	}
	return path, nil
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("members %s\n", version)
	},
}
