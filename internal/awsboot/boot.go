// Package awsboot lazily loads the AWS config and builds the optional AWS
// collaborators of a run: SSM for configuration, the DynamoDB job ledger and
// the EventBridge notifier.
//
// Nothing here touches AWS unless one of those collaborators is enabled, so
// runs that only talk to Azure never need AWS credentials.
package awsboot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/mjrousos/video-analysis-exploration/internal/config"
	"github.com/mjrousos/video-analysis-exploration/internal/events"
	"github.com/mjrousos/video-analysis-exploration/internal/store"
)

type loadFunc func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)

// Clients loads the AWS config once on first use.
type Clients struct {
	region string
	load   loadFunc

	once sync.Once
	cfg  aws.Config
	err  error
}

// New returns Clients for region. An empty region defers to the SDK's
// default resolution (AWS_REGION, shared config).
func New(region string) *Clients {
	return &Clients{
		region: region,
		load:   awsconfig.LoadDefaultConfig,
	}
}

// Config returns the loaded AWS config.
func (c *Clients) Config(ctx context.Context) (aws.Config, error) {
	c.once.Do(func() {
		start := time.Now()
		var opts []func(*awsconfig.LoadOptions) error
		if c.region != "" {
			opts = append(opts, awsconfig.WithRegion(c.region))
		}
		c.cfg, c.err = c.load(ctx, opts...)
		if c.err != nil {
			c.err = fmt.Errorf("load AWS config: %w", c.err)
			return
		}
		log.Debug().Str("region", c.cfg.Region).Dur("elapsed", time.Since(start)).Msg("AWS config loaded")
	})
	return c.cfg, c.err
}

// SSM returns an SSM client. Its signature matches config.SSMFactory.
func (c *Clients) SSM(ctx context.Context) (config.SSMAPI, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}
	return ssm.NewFromConfig(cfg), nil
}

// JobStore returns the DynamoDB job ledger, or nil when tableName is empty.
func (c *Clients) JobStore(ctx context.Context, tableName string) (*store.DynamoStore, error) {
	if tableName == "" {
		log.Debug().Msg("Job ledger table not set, ledger disabled")
		return nil, nil
	}
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName), nil
}

// Notifier returns the EventBridge notifier, or nil when busName is empty.
func (c *Clients) Notifier(ctx context.Context, busName string) (*events.Notifier, error) {
	if busName == "" {
		log.Debug().Msg("Event bus not set, completion events disabled")
		return nil, nil
	}
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}
	return events.NewNotifier(eventbridge.NewFromConfig(cfg), busName), nil
}
