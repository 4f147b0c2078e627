// Package awsddb adapts a real *dynamodb.Client to ddbapi.Client,
// constructed via the AWS SDK's own config loading — the one piece of
// "configuration" the core's backend adapter owns.
package awsddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/normwc/norm/ddbapi"
)

// Option customizes client construction.
type Option func(*options)

type options struct {
	region   string
	endpoint string
}

// WithRegion overrides the region resolved by the default AWS config chain.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithEndpoint points the client at a non-AWS endpoint (e.g. a local
// DynamoDB Local instance) instead of the real service.
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

// New loads the default AWS config (environment, shared config file,
// instance role, in that order) and returns a *dynamodb.Client satisfying
// ddbapi.Client.
func New(ctx context.Context, opts ...Option) (ddbapi.Client, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("awsddb: loading default AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o2 *dynamodb.Options) {
		if o.endpoint != "" {
			o2.BaseEndpoint = aws.String(o.endpoint)
		}
	}), nil
}
