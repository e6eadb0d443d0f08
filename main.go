// Package main provides the entry point for the tts-proxy server.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/config"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	// where `config` creates a file when none was found
	defaultConfigFile string

	port       int
	dataDir    string
	backendURL string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "tts-proxy",
		Short: "Caching text-to-speech proxy with position sync",
		Long: paragraph(
			fmt.Sprintf("\nA %s in front of an OpenAI-compatible speech backend. Audio is cached on disk by content, and playback and scroll positions are shared between devices over %s.",
				keyword("caching TTS proxy"), keyword("Server-Sent Events")),
		),
		Example:          paragraph("tts-proxy\ntts-proxy --port 8080 --backend http://localhost:5050\ntts-proxy --data-dir ~/.local/share/tts-proxy"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := readConfigFlag()
			if cmd == configCmd && errors.Is(err, fs.ErrNotExist) {
				// config creates it
				return nil
			}
			return err
		},
		RunE: execute,
	}
)

// readConfigFlag reads the file named by --config, replacing whatever was
// found in the default places.
func readConfigFlag() error {
	if configFile == "" {
		return nil
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file %s: %w", configFile, err)
	}
	return nil
}

// loadConfig resolves the effective configuration: defaults, then the config
// file, then the environment, then command-line flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("backend") {
		cfg.BackendURL = backendURL
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}

	if err := cfg.Normalize(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLog(cfg)
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("Using configuration file", "path", used)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(viper.GetViper())
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	d := config.Default()
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().IntVarP(&port, "port", "p", d.Port, "port to listen on")
	rootCmd.Flags().StringVarP(&dataDir, "data-dir", "d", d.DataDir, "directory for cached audio, counters and positions")
	rootCmd.Flags().StringVarP(&backendURL, "backend", "b", d.BackendURL, "base URL of the speech backend")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(configCmd, manCmd)
}

func configDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, "tts-proxy")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, err
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "tts-proxy")}, dirs...)
	}

	if c := os.Getenv("TTS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	return dirs, nil
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := configDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("tts-proxy")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if viper.ConfigFileUsed() == "" && len(dirs) > 0 {
		defaultConfigFile = filepath.Join(dirs[0], "tts-proxy.yml")
	}
}
