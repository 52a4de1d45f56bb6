package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"groupsync/internal/app"
	"groupsync/internal/config"
	"groupsync/internal/gs"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config file named by the defaults.
func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newClient reads the config and creates a ClientApp. The caller must defer a.Close().
func newClient() (*app.ClientApp, error) {
	cfg, path, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewClientApp(cfg, path)
	if err != nil {
		return nil, fmt.Errorf("initializing client: %w", err)
	}
	return a, nil
}

// requestContext bounds a single CLI call to the server.
func requestContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.Client.RequestTimeout())
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:          "gs",
	Short:        "Group file sync",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server-url")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostName, err := os.Hostname()
		if err != nil {
			hostName = "unknown"
		}

		cfg := config.NewConfig(defaults["base_dir"], hostName)
		if serverURL != "" {
			cfg.Client.ServerURL = serverURL
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host:       %s\n", hostName)
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		fmt.Printf("Server URL: %s\n", cfg.Client.ServerURL)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Listen:      %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Database:    %s %s\n", cfg.Server.Database.Type, cfg.Server.Database.Path)
		fmt.Printf("Vault:       %s\n", cfg.Server.Vault.Type)
		fmt.Printf("Encryption:  %s\n", cfg.Server.Encryption.Type)
		fmt.Printf("Client ID:   %s\n", cfg.Client.ClientID)
		fmt.Printf("Server URL:  %s\n", cfg.Client.ServerURL)
		for _, wg := range cfg.Client.WatchGroups {
			fmt.Printf("Watch:       %s -> %s\n", wg.LocalPath, wg.GroupName)
		}
		return nil
	},
}

// server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run and maintain the sync server",
}

var serverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the sync API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := app.NewServerApp(ctx, cfg, app.ReadPassphrase, version)
		if err != nil {
			return fmt.Errorf("initializing server: %w", err)
		}
		defer a.Close()

		return a.Run(ctx)
	},
}

var serverMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")

		cfg, _, err := readConfig()
		if err != nil {
			return err
		}

		st, err := app.MigrateDatabase(cfg, check)
		if err != nil {
			return err
		}

		switch {
		case st.UpToDate():
			fmt.Printf("Database is up to date (version %d)\n", st.Current)
		case st.Empty:
			fmt.Printf("Database has no schema (latest is %d)\n", st.Latest)
		case st.Dirty:
			fmt.Printf("Database is dirty at version %d\n", st.Current)
		default:
			fmt.Printf("Database is at version %d, latest is %d\n", st.Current, st.Latest)
		}
		if check && !st.UpToDate() {
			return fmt.Errorf("migrations pending")
		}
		return nil
	},
}

var serverBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a snapshot of the server database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}

		if err := app.BackupDatabase(cfg, args[0]); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Database written to %s\n", args[0])
		return nil
	},
}

var serverKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage content encryption keys",
}

var serverKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the content encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}

		if err := app.InitKeys(cfg, app.ReadPassphrase); err != nil {
			return err
		}
		fmt.Printf("Keys written to %s\n", cfg.Server.Encryption.PrivateKeyPath)
		fmt.Println("Set encryption type to \"age\" in the config to use them.")
		return nil
	},
}

// client command
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Synchronize local directories",
}

var clientRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync continuously until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newClient()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		return a.Run(ctx)
	},
}

var clientSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle per mapping",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newClient()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		results, err := a.SyncOnce(ctx)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("cursor %d: %d uploaded, %d deleted, %d pulled, %d removed\n",
				r.Cursor, r.Uploaded, r.Deleted, r.Pulled, r.Removed)
		}
		return nil
	},
}

var clientMappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "List this client's mappings on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		if cfg.Client.ClientID == "" {
			return fmt.Errorf("client is not registered yet; run `gs client sync`")
		}

		ctx, cancel := requestContext(cfg)
		defer cancel()

		mappings, err := app.NewAPIClient(cfg).Mappings(ctx)
		if err != nil {
			return err
		}
		if len(mappings) == 0 {
			fmt.Println("No mappings.")
			return nil
		}
		for _, m := range mappings {
			fmt.Printf("#%d  group %d  %s", m.ID, m.ServerWatchGroupID, m.LocalPath)
			if m.ExcludeDotDirs {
				fmt.Print("  [no dot dirs]")
			}
			if len(m.ExcludedDirs) > 0 {
				fmt.Printf("  excluded: %v", m.ExcludedDirs)
			}
			fmt.Println()
		}
		return nil
	},
}

// group command
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage server watch groups",
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cfg)
		defer cancel()

		groups, err := app.NewAPIClient(cfg).ListGroups(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Printf("#%d  %-20s  %s\n", g.ID, g.Name, g.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var groupCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cfg)
		defer cancel()

		g, err := app.NewAPIClient(cfg).CreateGroup(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created group #%d %s\n", g.ID, g.Name)
		return nil
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid group id %q", args[0])
		}

		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cfg)
		defer cancel()

		g, err := app.NewAPIClient(cfg).RenameGroup(ctx, id, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed group #%d to %s\n", g.ID, g.Name)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View a group's event history",
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, _ := cmd.Flags().GetInt64("group")
		path, _ := cmd.Flags().GetString("path")
		since, _ := cmd.Flags().GetInt64("since")

		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cfg)
		defer cancel()

		c := app.NewAPIClient(cfg)
		var events []gs.FileEvent
		if path != "" {
			evs, err := c.PathHistory(ctx, groupID, path)
			if err != nil {
				return err
			}
			events = evs
		} else {
			evs, err := c.History(ctx, groupID, since)
			if err != nil {
				return err
			}
			events = evs
		}

		if len(events) == 0 {
			fmt.Println("No events.")
			return nil
		}
		for _, e := range events {
			sum := e.Checksum
			if len(sum) > 12 {
				sum = sum[:12]
			}
			fmt.Printf("#%-6d  %-6s  %s  %10d  %-12s  %s\n",
				e.Sequence,
				e.Kind,
				time.UnixMilli(e.UTCMillis).Format("2006-01-02 15:04:05"),
				e.Size,
				sum,
				e.Path,
			)
		}
		return nil
	},
}

// ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cfg)
		defer cancel()

		c := app.NewAPIClient(cfg)
		if err := c.Ping(ctx); err != nil {
			return err
		}
		v, err := c.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pong from %s (version %s)\n", cfg.Client.ServerURL, v)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("server-url", "", "Server base URL")

	// server subcommands
	serverCmd.AddCommand(serverRunCmd)
	serverCmd.AddCommand(serverMigrateCmd)
	serverMigrateCmd.Flags().Bool("check", false, "Only report whether migrations are pending")
	serverCmd.AddCommand(serverBackupCmd)
	serverCmd.AddCommand(serverKeysCmd)
	serverKeysCmd.AddCommand(serverKeysInitCmd)

	// client subcommands
	clientCmd.AddCommand(clientRunCmd)
	clientCmd.AddCommand(clientSyncCmd)
	clientCmd.AddCommand(clientMappingsCmd)

	// group subcommands
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupRenameCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int64P("group", "g", 1, "Server watch group ID")
	historyCmd.Flags().StringP("path", "p", "", "Show only events for this path")
	historyCmd.Flags().Int64("since", 0, "Show events after this sequence")
	rootCmd.AddCommand(pingCmd)
}
