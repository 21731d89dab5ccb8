package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/onnwee/chanstats/config"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/snapshot"
	"github.com/onnwee/chanstats/youtubeapi"
)

var (
	extractPeriod   *string
	extractForce    *bool
	extractChannels *string
	extractMaxLives *int
)

func init() {
	extractPeriod = extractCmd.Flags().String("period", "", "Period to extract (YYYY-MM or MM-YYYY). Defaults to the current month.")
	extractForce = extractCmd.Flags().Bool("force", false, "Overwrite an existing snapshot of the period.")
	extractChannels = extractCmd.Flags().String("channels", "", "Channel list CSV (overrides CHANNELS_FILE).")
	extractMaxLives = extractCmd.Flags().Int("max-lives", -1, "Broadcasts kept per channel. Defaults to MAX_LIVE_VIDEOS.")
	rootCmd.AddCommand(extractCmd)
}

func newYouTubeClient(cmd *cobra.Command, c *config.Config) (*youtubeapi.Client, error) {
	if err := c.ValidateFetch(); err != nil {
		return nil, err
	}
	return youtubeapi.NewClient(cmd.Context(), youtubeapi.Credentials{
		APIKey:       c.YouTubeAPIKey,
		ClientID:     c.YTClientID,
		ClientSecret: c.YTClientSecret,
		RefreshToken: c.YTRefreshToken,
	}, youtubeapi.NewQuota(c.QuotaBudget))
}

func channelsFile(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.ChannelsFile
}

var extractCmd = &cobra.Command{
	Use:   "extract [--period YYYY-MM] [--force]",
	Short: "Fetches channel statistics and the period's live broadcasts into a new snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := period.Now()
		if *extractPeriod != "" {
			var err error
			if p, err = period.Parse(*extractPeriod); err != nil {
				return err
			}
		}
		refs, err := youtubeapi.ReadChannelList(channelsFile(*extractChannels))
		if err != nil {
			return err
		}
		client, err := newYouTubeClient(cmd, cfg)
		if err != nil {
			return err
		}

		w := snapshot.NewWriter(layout())
		w.Force = *extractForce
		ex := youtubeapi.NewExtractor(client, w, cfg.DataDir, client.Quota(), slog.Default())
		ex.MaxLives = cfg.MaxLiveVideos
		if *extractMaxLives >= 0 {
			ex.MaxLives = *extractMaxLives
		}

		res, err := ex.Run(cmd.Context(), youtubeapi.IDs(refs), p)
		if err != nil {
			return err
		}
		slog.Info("extraction finished",
			slog.String("run_id", res.RunID),
			slog.String("period", res.Period.String()),
			slog.Int("channels", res.Channels),
			slog.Int("videos", res.Videos),
			slog.Int("failed", len(res.Failed)),
			slog.Int("quota_used", res.QuotaUsed))
		if res.Channels == 0 && len(res.Failed) > 0 {
			return fmt.Errorf("every channel failed, see %s", filepath.Clean(res.ErrorLog))
		}
		return nil
	},
}
