// Package cli implements lookoutctl, the operator tool for a running lookout.
package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"frameworks/lookout/pkg/clients"
	lookoutclient "frameworks/lookout/pkg/clients/lookout"
)

const defaultServer = "http://localhost:18040"

var (
	cfgFile string
	output  string
	server  string
	timeout time.Duration
)

// NewRootCmd returns the root command for lookoutctl
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lookoutctl",
		Short:         "Operate a lookout alarm console",
		Long:          "lookoutctl talks to a running lookout: check status, mute announcements, acknowledge alerts, and run a speaker relay.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lookout/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "", "output format: json|text (default: text)")
	rootCmd.PersistentFlags().StringVar(&server, "server", defaultServer, "lookout base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newChannelsCmd())
	rootCmd.AddCommand(newAlertsCmd())
	rootCmd.AddCommand(newAckCmd())
	rootCmd.AddCommand(newSpeechCmd(true))
	rootCmd.AddCommand(newSpeechCmd(false))
	rootCmd.AddCommand(newTestSpeechCmd())
	rootCmd.AddCommand(newResetSuppressionCmd())
	rootCmd.AddCommand(newSpeakerCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.lookout")
			viper.SetConfigName("config")
		}
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LOOKOUT")
	viper.AutomaticEnv()
	// the service reads plain REDIS_URL
	_ = viper.BindEnv("redis_url", "LOOKOUT_REDIS_URL", "REDIS_URL")

	// Ignore missing config
	_ = viper.ReadInConfig()
}

// newClient builds an API client for the configured server. Flag beats env
// beats config file.
func newClient() *lookoutclient.Client {
	base := viper.GetString("server")
	if base == "" {
		base = defaultServer
	}
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxRetries = 1
	return lookoutclient.NewClient(base,
		lookoutclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		lookoutclient.WithHTTPExecutorConfig(cfg),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
