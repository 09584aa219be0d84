package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/logging"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `Get or set values in ~/.config/shelf/config.yml.

Usage:
  shelf config                        # Show all config
  shelf config username               # Get specific value
  shelf config data-dir ~/papers      # Set value

Keys:
  data-dir              Collection root
  username              Name recorded on packages and annotations
  log-level             debug, info, warn, error or silent
  lock-timeout          How long writers wait for the store lock (e.g. 10s)
  limits.max-files      Package validator: maximum entries
  limits.max-total-mb   Package validator: maximum uncompressed total
  limits.max-entry-mb   Package validator: maximum uncompressed entry
  limits.max-ratio      Package validator: maximum compression ratio`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"data-dir",
	"username",
	"log-level",
	"lock-timeout",
	"limits.max-files",
	"limits.max-total-mb",
	"limits.max-entry-mb",
	"limits.max-ratio",
}

// UpdateResponse is the response for config set commands.
type UpdateResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		exitWithErr(apperr.Wrap(apperr.InvalidArgument, err, "loading config").
			WithHint("Fix or remove " + config.GlobalConfigPath() + "."))
	}

	if len(args) == 0 {
		values := make(map[string]string, len(configKeys))
		for _, key := range configKeys {
			values[key], _ = getConfigValue(cfg, key)
		}
		if humanOutput {
			for _, key := range configKeys {
				outputHuman("%-20s %s\n", key+":", values[key])
			}
			return nil
		}
		return outputJSON(values)
	}

	key := normalizeKey(args[0])
	if len(args) == 1 {
		value, err := getConfigValue(cfg, key)
		if err != nil {
			exitWithErr(err)
		}
		if humanOutput {
			fmt.Println(value)
			return nil
		}
		return outputJSON(map[string]string{key: value})
	}

	updated := *cfg
	if err := setConfigValue(&updated, key, args[1]); err != nil {
		exitWithErr(err)
	}
	if err := updated.Save(); err != nil {
		exitWithErr(apperr.Wrap(apperr.FileError, err, "saving config"))
	}

	if humanOutput {
		fmt.Printf("Updated %s to %s\n", key, args[1])
		return nil
	}
	return outputJSON(UpdateResponse{Success: true, Key: key, Value: args[1]})
}

// normalizeKey converts key formats (data_dir, Data-Dir) to data-dir.
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.ReplaceAll(key, "_", "-")
}

func unknownKey(key string) error {
	return apperr.New(apperr.InvalidArgument, "unknown configuration key: %s", key).
		WithHint("Valid keys: " + strings.Join(configKeys, ", ") + ".")
}

func getConfigValue(cfg *config.GlobalConfig, key string) (string, error) {
	switch key {
	case "data-dir":
		return cfg.DataDir, nil
	case "username":
		return cfg.Username, nil
	case "log-level":
		return cfg.LogLevel, nil
	case "lock-timeout":
		return cfg.LockTimeout, nil
	case "limits.max-files":
		return formatInt(int64(cfg.Limits.MaxFiles)), nil
	case "limits.max-total-mb":
		return formatInt(cfg.Limits.MaxTotalMB), nil
	case "limits.max-entry-mb":
		return formatInt(cfg.Limits.MaxEntryMB), nil
	case "limits.max-ratio":
		if cfg.Limits.MaxRatio == 0 {
			return "", nil
		}
		return strconv.FormatFloat(cfg.Limits.MaxRatio, 'g', -1, 64), nil
	}
	return "", unknownKey(key)
}

// setConfigValue validates value and stores it under key.
func setConfigValue(cfg *config.GlobalConfig, key, value string) error {
	invalid := func(err error) error {
		return apperr.Wrap(apperr.InvalidArgument, err, "invalid value for %s: %q", key, value)
	}

	switch key {
	case "data-dir":
		cfg.DataDir = config.ExpandPath(value)
	case "username":
		cfg.Username = value
	case "log-level":
		if _, err := logging.ParseLevel(value); err != nil {
			return invalid(err)
		}
		cfg.LogLevel = strings.ToLower(value)
	case "lock-timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return invalid(err)
		}
		if d <= 0 {
			return invalid(fmt.Errorf("must be positive"))
		}
		cfg.LockTimeout = value
	case "limits.max-files":
		n, err := parsePositive(value)
		if err != nil {
			return invalid(err)
		}
		cfg.Limits.MaxFiles = int(n)
	case "limits.max-total-mb":
		n, err := parsePositive(value)
		if err != nil {
			return invalid(err)
		}
		cfg.Limits.MaxTotalMB = n
	case "limits.max-entry-mb":
		n, err := parsePositive(value)
		if err != nil {
			return invalid(err)
		}
		cfg.Limits.MaxEntryMB = n
	case "limits.max-ratio":
		r, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return invalid(err)
		}
		if r < 1 {
			return invalid(fmt.Errorf("must be at least 1"))
		}
		cfg.Limits.MaxRatio = r
	default:
		return unknownKey(key)
	}
	return nil
}

func parsePositive(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}

func formatInt(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
