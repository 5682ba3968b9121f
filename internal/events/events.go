// Package events publishes analysis completion events to Amazon EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	// Source is the EventBridge source of every event.
	Source = "video-analyze"

	// DetailTypeAnalysisCompleted marks the end of an analysis run.
	DetailTypeAnalysisCompleted = "AnalysisCompleted"
)

// AnalysisCompleted is emitted once per run that obtained a video ID.
type AnalysisCompleted struct {
	VideoID    string `json:"videoId"`
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	State      string `json:"state"`
	OutputPath string `json:"outputPath,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// PutEventsAPI is the subset of the EventBridge client used by Notifier.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Notifier sends events to one bus.
type Notifier struct {
	client  PutEventsAPI
	busName string
}

// NewNotifier creates a Notifier. An empty busName targets the default bus.
func NewNotifier(client PutEventsAPI, busName string) *Notifier {
	return &Notifier{client: client, busName: busName}
}

// AnalysisCompleted publishes event.
func (n *Notifier) AnalysisCompleted(ctx context.Context, event AnalysisCompleted) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal AnalysisCompleted: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypeAnalysisCompleted),
		Detail:     aws.String(string(detail)),
	}
	if n.busName != "" {
		entry.EventBusName = aws.String(n.busName)
	}

	result, err := n.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("videoId", event.VideoID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("videoId", event.VideoID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("videoId", event.VideoID).Str("outcome", event.Outcome).Msg("AnalysisCompleted emitted to EventBridge")
	return nil
}
