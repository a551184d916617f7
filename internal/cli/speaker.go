package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/redis"
	"frameworks/lookout/pkg/speech"
	"frameworks/lookout/pkg/version"
)

// newSpeakerCmd runs a kiosk speaker: it plays the cues a lookout with the
// redis speech backend publishes.
func newSpeakerCmd() *cobra.Command {
	var binary string
	cmd := &cobra.Command{Use: "speaker", Short: "Play broadcast announcements on this machine", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		redisURL := viper.GetString("redis_url")
		if redisURL == "" {
			return fmt.Errorf("a redis URL is required (--redis-url or LOOKOUT_REDIS_URL)")
		}
		channel := viper.GetString("speech_channel")

		logger := logging.NewLoggerWithService("lookoutctl")
		target := speech.NewCommand(binary, speech.EspeakArgs, logger)
		if !target.Available() {
			return fmt.Errorf("speech binary %q not found on PATH", binary)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rc, err := redis.NewClientFromURL(ctx, redisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		ready := make(chan struct{})
		go func() {
			select {
			case <-ready:
				logger.WithField("channel", channel).Info("Speaker relay listening")
			case <-ctx.Done():
			}
		}()

		err = speech.Relay(ctx, redis.NewTypedPubSub[speech.Cue](rc, logger), channel, ready, target, logger)
		target.Cancel()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}}
	cmd.Flags().String("redis-url", "", "redis URL the lookout broadcasts on")
	cmd.Flags().String("channel", "lookout:speech", "pub/sub channel for speech cues")
	cmd.Flags().StringVar(&binary, "binary", "espeak-ng", "TTS binary to run for each cue")
	_ = viper.BindPFlag("redis_url", cmd.Flags().Lookup("redis-url"))
	_ = viper.BindPFlag("speech_channel", cmd.Flags().Lookup("channel"))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print lookoutctl version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), version.GetInfo())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lookoutctl\n")
			fmt.Fprintf(cmd.OutOrStdout(), " - version: %s\n", version.Version)
			fmt.Fprintf(cmd.OutOrStdout(), " - git: %s\n", version.GitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), " - built: %s\n", version.BuildDate)
			return nil
		},
	}
}
