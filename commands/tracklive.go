package commands

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/chanstats/youtubeapi"
)

var (
	trackWindow   *string
	trackInterval *string
	trackChannels *string
	trackOnce     *bool
)

func init() {
	trackWindow = trackLiveCmd.Flags().String("window", "", "Daily polling window HH:MM-HH:MM (overrides LIVE_TRACK_WINDOW).")
	trackInterval = trackLiveCmd.Flags().String("interval", "", "Polling interval, e.g. 30m (overrides LIVE_TRACK_INTERVAL).")
	trackChannels = trackLiveCmd.Flags().String("channels", "", "Channel list CSV (overrides CHANNELS_FILE).")
	trackOnce = trackLiveCmd.Flags().Bool("once", false, "Poll once and exit, ignoring the window.")
	rootCmd.AddCommand(trackLiveCmd)
}

var trackLiveCmd = &cobra.Command{
	Use:   "track-live [--window HH:MM-HH:MM] [--interval 30m] [--once]",
	Short: "Polls which channels are live and appends the results to daily CSV files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		windowStr := cfg.LiveTrackWindow
		if *trackWindow != "" {
			windowStr = *trackWindow
		}
		window, err := youtubeapi.ParseWindow(windowStr)
		if err != nil {
			return err
		}
		interval := cfg.LiveTrackInterval
		if *trackInterval != "" {
			if interval, err = time.ParseDuration(*trackInterval); err != nil {
				return err
			}
		}
		refs, err := youtubeapi.ReadChannelList(channelsFile(*trackChannels))
		if err != nil {
			return err
		}
		client, err := newYouTubeClient(cmd, cfg)
		if err != nil {
			return err
		}

		tracker := youtubeapi.NewLiveTracker(client, refs, filepath.Join(cfg.DataDir, "live_tracking"), window, interval, slog.Default())
		if *trackOnce {
			live, err := tracker.Poll(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("live poll finished", slog.Int("live", live), slog.Int("channels", len(refs)), slog.Int("quota_used", client.Quota().Used()))
			return nil
		}
		slog.Info("live tracker starting", slog.String("window", window.String()), slog.Duration("interval", interval), slog.Int("channels", len(refs)))
		return tracker.Run(cmd.Context())
	},
}
