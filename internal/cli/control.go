package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"frameworks/lookout/pkg/api/lookout"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{Use: "status", Short: "Show speech, suppression and connection state", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		st, err := newClient().Status(ctx)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), st)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (up %s)\n", st.Service, st.Version, st.Uptime)
		fmt.Fprintf(out, "Speech:      %s (backend=%s, available=%t)\n", onOff(st.Speech.Enabled), st.Speech.Backend, st.Speech.Available)
		fmt.Fprintf(out, "Suppression: %d entries, %d pending, %d emitted\n", st.Suppression.Entries, st.Suppression.Pending, st.Suppression.Emitted)
		fmt.Fprintf(out, "Realtime:    %s %s", st.Realtime.State, st.Realtime.URL)
		if !st.Realtime.Connected && st.Realtime.NextDelay != "" {
			fmt.Fprintf(out, " (next retry in %s)", st.Realtime.NextDelay)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Channels:    %d, active alerts: %d\n", st.Channels, st.ActiveAlerts)
		if len(st.Notifications) > 0 {
			fmt.Fprintf(out, "Recent announcements (%d)\n", len(st.Notifications))
			for _, n := range st.Notifications {
				fmt.Fprintf(out, " - %s [%s] %s\n", n.At.Local().Format("15:04:05"), n.Kind, n.Text)
			}
		}
		return nil
	}}
}

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{Use: "channels", Short: "List channels and their status", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		c := newClient()
		chs, err := c.Channels(ctx)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), chs)
		}
		ov, err := c.Overview(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Channels (%d): normal=%d warning=%d alarm=%d offline=%d\n", ov.Total, ov.Normal, ov.Warning, ov.Alarm, ov.Offline)
		for _, ch := range chs {
			name := ch.ChannelName
			if name == "" {
				name = ch.ChannelID
			}
			fmt.Fprintf(out, " - %-8s %s (%s)\n", ch.Status, name, ch.ChannelID)
		}
		return nil
	}}
}

func newAlertsCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{Use: "alerts", Short: "List recent alerts, newest first", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		alerts, err := newClient().Alerts(ctx, strings.ToUpper(status), limit)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), alerts)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Alerts (%d)\n", len(alerts))
		for _, a := range alerts {
			name := a.ChannelID
			if a.ChannelName != nil && *a.ChannelName != "" {
				name = *a.ChannelName
			}
			fmt.Fprintf(out, " - #%d %s %s %s status=%s\n", a.ID, a.StartedAt, name, a.AlertType, a.Status)
		}
		return nil
	}}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: active|resolved|acknowledged")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum alerts to show")
	return cmd
}

func newAckCmd() *cobra.Command {
	return &cobra.Command{Use: "ack <alert-id>", Short: "Acknowledge an alert", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid alert id %q", args[0])
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		resp, err := newClient().Ack(ctx, id)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert #%d %s\n", resp.AlertID, strings.ToLower(resp.Status))
		return nil
	}}
}

// newSpeechCmd returns "unmute" when enable is set and "mute" otherwise.
func newSpeechCmd(enable bool) *cobra.Command {
	use, short := "mute", "Silence voice announcements"
	if enable {
		use, short = "unmute", "Resume voice announcements"
	}
	return &cobra.Command{Use: use, Short: short, Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		enabled, err := newClient().SetSpeech(ctx, enable)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), lookout.SpeechToggleResponse{Enabled: enabled})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Speech %s\n", onOff(enabled))
		return nil
	}}
}

func newTestSpeechCmd() *cobra.Command {
	return &cobra.Command{Use: "test-speech", Short: "Speak the self-test phrase", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		resp, err := newClient().TestSpeech(ctx)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		if !resp.Spoken {
			fmt.Fprintln(cmd.OutOrStdout(), "Not spoken: speech is muted or unavailable")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Spoken: %s\n", resp.Text)
		return nil
	}}
}

func newResetSuppressionCmd() *cobra.Command {
	return &cobra.Command{Use: "reset-suppression", Short: "Forget suppressed faults so they can be announced again", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		n, err := newClient().ResetSuppression(ctx)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]int{"cleared": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d suppression entries\n", n)
		return nil
	}}
}
