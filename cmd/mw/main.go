package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/daviddao/mailwatch/internal/config"
	"github.com/daviddao/mailwatch/internal/db"
	"github.com/daviddao/mailwatch/internal/display"
	"github.com/daviddao/mailwatch/internal/logging"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	cfgPath      string
	dbPath       string
	outputFormat string
	quietFlag    bool
	logLevel     string

	cfg    *config.Config
	store  *db.DB
	logger *logrus.Entry
)

var rootCmd = &cobra.Command{
	Use:           "mw",
	Short:         "mw - mail listener that turns new mail into incidents",
	Long:          "Mailwatch: poll a hosted mailbox folder, turn new messages into incidents and run mail actions.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "init", "help", "version":
			return nil
		}
		switch outputFormat {
		case "text", "json", "yaml":
		default:
			return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
		}

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		log, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}
		logger = logging.WithRun(log, cmd.Name())

		path := dbPath
		if path == "" {
			path = cfg.DBPath
		}
		if path == "" {
			path = db.DiscoverDB()
		}
		if path == "" {
			return fmt.Errorf("no mailwatch database found, run 'mw init' first")
		}

		store, err = db.Open(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		logger.WithField("db", store.Path()).Debug("database opened")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mw version %s\n", Version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .mailwatch/ in the project root and write a config template",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := db.FindProjectRoot()
		if root == "" {
			return fmt.Errorf("could not find project root (no .git directory found)")
		}

		path := filepath.Join(root, db.DirName, "mailwatch.db")
		s, err := db.Open(path)
		if err != nil {
			return err
		}
		s.Close()

		ensureGitignore(root)

		confPath := cfgPath
		if confPath == "" {
			confPath = config.DefaultPath()
		}
		wroteConfig := false
		if _, err := os.Stat(confPath); os.IsNotExist(err) {
			template, err := config.Load(confPath)
			if err != nil {
				return err
			}
			if err := config.Save(confPath, template); err != nil {
				return err
			}
			wroteConfig = true
		}

		if !quietFlag {
			out := cmd.OutOrStdout()
			display.SuccessMsg(out, "Initialized mailwatch at %s", path)
			if wroteConfig {
				display.SuccessMsg(out, "Wrote config template to %s", confPath)
				fmt.Fprintln(out, display.Dim.Render("  Fill in mailbox, broker.registration_id, broker.enc_key and refresh_token."))
			}
		}
		return nil
	},
}

// ensureGitignore adds .mailwatch/ to .gitignore if not already present.
func ensureGitignore(root string) {
	gitignorePath := filepath.Join(root, ".gitignore")
	entry := db.DirName + "/"

	existing, err := os.ReadFile(gitignorePath)
	if err == nil {
		scanner := bufio.NewScanner(strings.NewReader(string(existing)))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == entry || line == db.DirName {
				return
			}
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		f.WriteString("\n")
	}
	fmt.Fprintf(f, "\n# Mailwatch database (cursor, credential, incidents)\n%s\n", entry)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ~/.config/mailwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: db_path from config, then auto-discover .mailwatch/mailwatch.db)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides log.level from config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		display.ErrorMsg(os.Stderr, "%v", err)
		os.Exit(1)
	}
}
