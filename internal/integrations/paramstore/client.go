// Package paramstore loads the tracker store's construction-time
// configuration from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// StoreConfig is everything needed to construct the event store. Values
// are read once at cold start; there is no runtime reconfiguration.
type StoreConfig struct {
	// TableName is the DynamoDB table holding the event log.
	TableName string
	// Endpoint optionally overrides the DynamoDB endpoint (local stacks,
	// VPC endpoints). Empty means the SDK default.
	Endpoint string
}

// Client wraps an AWS SSM API for configuration retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter fetches one decrypted parameter value.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// getOptional fetches a parameter, mapping absence to "".
func (c *Client) getOptional(ctx context.Context, name string) (string, error) {
	v, err := c.GetParameter(ctx, name)
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// LoadStoreConfig reads the store configuration under the given parameter
// prefix: <prefix>/tracker_table (required) and <prefix>/dynamodb_endpoint
// (optional).
func (c *Client) LoadStoreConfig(ctx context.Context, prefix string) (StoreConfig, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return StoreConfig{}, errors.New("paramstore: parameter prefix must not be empty")
	}

	table, err := c.GetParameter(ctx, prefix+"/tracker_table")
	if err != nil {
		return StoreConfig{}, fmt.Errorf("paramstore: load tracker table: %w", err)
	}
	if strings.TrimSpace(table) == "" {
		return StoreConfig{}, errors.New("paramstore: tracker table parameter is empty")
	}

	endpoint, err := c.getOptional(ctx, prefix+"/dynamodb_endpoint")
	if err != nil {
		return StoreConfig{}, fmt.Errorf("paramstore: load dynamodb endpoint: %w", err)
	}

	return StoreConfig{TableName: table, Endpoint: endpoint}, nil
}
