package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# port to listen on
port: 5051
# directory for cached audio, counters and positions
data_dir: "./data/tts-cache"
# OpenAI-compatible speech backend
backend_url: "http://localhost:5050"
# backend request timeout (seconds)
timeout: 30
# idle seconds between SSE keep-alive comments
keep_alive: 30

# pending events per SSE client before it is dropped
queue_size: 100
# persist stats.json every N counter updates
stats_flush_every: 10
# zstd level for cached audio (1-22), 0 stores raw mp3
compression_level: 0
# backend requests per minute, 0 for unlimited
backend_rpm: 0
# share one backend call between identical concurrent misses
coalesce_misses: false
# publish position files changed by other processes
watch_positions: false
# relay position events between instances, e.g. "localhost:6379"
redis_addr: ""

default_voice: "alloy"
default_model: "tts-1"

# debug, info, warn or error
log_level: "info"
# text, logfmt or json
log_format: "text"
debug: false
`

var showConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the tts-proxy config file",
	Long:    paragraph(fmt.Sprintf("\n%s the tts-proxy config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("tts-proxy config\ntts-proxy config --config path/to/config.yml\ntts-proxy config --show"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if showConfig {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}

		file, err := ensureConfigFile()
		if err != nil {
			return err
		}

		c, err := editor.Cmd("tts-proxy", file)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", file)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&showConfig, "show", false, "print the effective configuration instead of editing")
}

// configPath picks the file to edit: --config, the file that was loaded, or
// the default location.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if used := viper.GetViper().ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigFile
}

// ensureConfigFile returns the config file path, writing defaultConfig there
// first if the file does not exist.
func ensureConfigFile() (string, error) {
	file := configPath()
	if file == "" {
		return "", errors.New("no configuration directory available")
	}

	if ext := path.Ext(file); ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return "", fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(file)
		if err != nil {
			return "", fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return "", fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return "", fmt.Errorf("unable to stat config file: %w", err)
	}
	return file, nil
}
