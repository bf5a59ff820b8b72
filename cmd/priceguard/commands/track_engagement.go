package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

var (
	trackEngagementDeliveryID string
	trackEngagementEventType  string
	trackEngagementUserAgent  string
)

var trackEngagementCmd = &cobra.Command{
	Use:   "track-engagement",
	Short: "Record one delivery engagement event and exit",
	Long: `track-engagement is the engagement-tracking entrypoint this daemon
exposes in place of an HTTP callback endpoint: it records one interaction
with a Delivery (delivered/opened/clicked/action_taken/dismissed),
classifying device and platform from an optional User-Agent string, then
recomputes the owning user's EngagementMetrics rollup.`,
	RunE: runTrackEngagement,
}

func init() {
	trackEngagementCmd.Flags().StringVar(&trackEngagementDeliveryID, "delivery-id", "", "delivery to record the event against (required)")
	trackEngagementCmd.Flags().StringVar(&trackEngagementEventType, "event-type", "", "delivered|opened|clicked|action_taken|dismissed (required)")
	trackEngagementCmd.Flags().StringVar(&trackEngagementUserAgent, "user-agent", "", "raw User-Agent header, if known")
	trackEngagementCmd.MarkFlagRequired("delivery-id")
	trackEngagementCmd.MarkFlagRequired("event-type")
}

func runTrackEngagement(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eventType := domain.EngagementEventType(trackEngagementEventType)
	event, err := container.Engagement.Track(ctx, trackEngagementDeliveryID, eventType, trackEngagementUserAgent)
	if err != nil {
		return fmt.Errorf("track engagement: %w", err)
	}

	container.Logger.Info("engagement tracked",
		zap.String("delivery_id", trackEngagementDeliveryID),
		zap.String("event_type", string(eventType)),
		zap.String("device_type", event.DeviceType),
		zap.String("platform", event.Platform))
	return nil
}
