// Package store keeps a ledger of analysis jobs so a run that was cancelled
// locally can be traced to the video still processing server-side.
//
// The DynamoDB implementation uses a single-table layout: one item per video
// with partition key VIDEO#{videoId} and sort key META. A TTL attribute
// (expiresAt) deletes records after JobTTL.
package store

import (
	"context"
	"time"
)

// JobTTL is the time-to-live for ledger records.
const JobTTL = 7 * 24 * time.Hour

// JobRecord is one analysis job.
type JobRecord struct {
	VideoID    string    `json:"videoId" dynamodbav:"-"`
	Name       string    `json:"name" dynamodbav:"name"`
	InputPath  string    `json:"inputPath" dynamodbav:"inputPath"`
	Source     string    `json:"source" dynamodbav:"source"`
	Location   string    `json:"location" dynamodbav:"location"`
	AccountID  string    `json:"accountId" dynamodbav:"accountId"`
	State      string    `json:"state" dynamodbav:"state"`
	OutputPath string    `json:"outputPath,omitempty" dynamodbav:"outputPath,omitempty"`
	CreatedAt  time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// JobStore persists JobRecords.
//
// GetJob returns (nil, nil) when the record does not exist. PutJob performs
// full-item replacement.
type JobStore interface {
	PutJob(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, videoID string) (*JobRecord, error)

	// UpdateJobState changes state (and outputPath when non-empty) without
	// overwriting other fields.
	UpdateJobState(ctx context.Context, videoID, state, outputPath string) error
}
