package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"telerelay/internal/conf"
	"telerelay/internal/flog"
)

var (
	cfgPath  string
	logDir   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "telerelayd",
	Short: "Multi-transport packet router and simulation streamer",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (defaults baked in if omitted)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for telerelayd.log and per-connection packet logs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listPortsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConf resolves the effective configuration from --config (if
// given) and applies the --log-dir/--log-level overrides on top.
func loadConf() (*conf.Conf, error) {
	var c *conf.Conf
	if cfgPath != "" {
		loaded, err := conf.LoadFromFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		c = loaded
	} else {
		c = conf.Default()
	}

	if logDir != "" {
		c.Log.Directory = logDir
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	return c, nil
}

func levelFromString(s string) flog.Level {
	switch s {
	case "debug":
		return flog.Debug
	case "warn":
		return flog.Warn
	case "error":
		return flog.Error
	default:
		return flog.Info
	}
}
