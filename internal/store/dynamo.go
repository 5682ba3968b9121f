package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "VIDEO#"
	skMeta   = "META"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore implements JobStore using AWS DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface check.
var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// --- Internal helpers ---

// videoPK returns the partition key for a video.
func videoPK(videoID string) string {
	return pkPrefix + videoID
}

func metaKey(videoID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: videoPK(videoID)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// expiresAt returns the Unix epoch timestamp for record expiration.
func (s *DynamoStore) expiresAt() int64 {
	return s.now().Add(JobTTL).Unix()
}

// --- JobStore ---

func (s *DynamoStore) PutJob(ctx context.Context, job *JobRecord) error {
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: videoPK(job.VideoID)}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", videoPK(job.VideoID), skMeta, err)
	}

	log.Debug().Str("videoId", job.VideoID).Str("state", job.State).Msg("Job recorded")
	return nil
}

func (s *DynamoStore) GetJob(ctx context.Context, videoID string) (*JobRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       metaKey(videoID),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s SK=%s: %w", videoPK(videoID), skMeta, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(result.Item, &job); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s SK=%s: %w", videoPK(videoID), skMeta, err)
	}
	job.VideoID = videoID
	return &job, nil
}

func (s *DynamoStore) UpdateJobState(ctx context.Context, videoID, state, outputPath string) error {
	now, err := attributevalue.Marshal(s.now().UTC())
	if err != nil {
		return fmt.Errorf("marshal updatedAt: %w", err)
	}

	expr := "SET #s = :s, updatedAt = :u"
	values := map[string]types.AttributeValue{
		":s": &types.AttributeValueMemberS{Value: state},
		":u": now,
	}
	if outputPath != "" {
		expr += ", outputPath = :o"
		values[":o"] = &types.AttributeValueMemberS{Value: outputPath}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              metaKey(videoID),
		UpdateExpression: aws.String(expr),
		ExpressionAttributeNames: map[string]string{
			"#s": "state", // "state" is a DynamoDB reserved word
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update job state %s -> %s: %w", videoID, state, err)
	}

	log.Debug().Str("videoId", videoID).Str("state", state).Msg("Job state updated")
	return nil
}
