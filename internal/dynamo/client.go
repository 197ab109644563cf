// Package dynamo provides a shared DynamoDB client factory.
// Only this package may import the DynamoDB SDK. Adapters in other packages
// use the re-exported types and helpers defined here.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Config holds DynamoDB connection parameters.
type Config struct {
	// Endpoint overrides the default AWS endpoint.
	// Set to a LocalStack URL (e.g. "http://localhost:4566") for local development.
	// When empty, the default AWS endpoint resolver is used.
	Endpoint string

	// Region is the AWS region for the DynamoDB client (e.g. "us-east-2").
	Region string

	// Timeout is the HTTP client timeout for DynamoDB requests. It is the only
	// bound on remote calls made by the time engine.
	Timeout time.Duration
}

// Client wraps the AWS DynamoDB SDK client.
// Adapters access the underlying SDK client via the DB field.
type Client struct {
	DB *dynamodb.Client
}

// NewClient creates a DynamoDB client configured from cfg.
// When cfg.Endpoint is non-empty, static test credentials and BaseEndpoint
// are set for LocalStack compatibility.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.Endpoint != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("test", "test", ""),
			),
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	var dbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		dbOpts = append(dbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = &endpoint
		})
	}

	return &Client{
		DB: dynamodb.NewFromConfig(awsCfg, dbOpts...),
	}, nil
}

// ---------------------------------------------------------------------------
// Type aliases. Adapters import dynamo.GetItemInput instead of the SDK.
// ---------------------------------------------------------------------------

// Core CRUD operation types.
type (
	GetItemInput     = dynamodb.GetItemInput
	GetItemOutput    = dynamodb.GetItemOutput
	PutItemInput     = dynamodb.PutItemInput
	PutItemOutput    = dynamodb.PutItemOutput
	QueryInput       = dynamodb.QueryInput
	QueryOutput      = dynamodb.QueryOutput
	UpdateItemInput  = dynamodb.UpdateItemInput
	UpdateItemOutput = dynamodb.UpdateItemOutput
	DeleteItemInput  = dynamodb.DeleteItemInput
	DeleteItemOutput = dynamodb.DeleteItemOutput
)

// Attribute value types.
type (
	AttributeValue           = types.AttributeValue
	AttributeValueMemberS    = types.AttributeValueMemberS
	AttributeValueMemberN    = types.AttributeValueMemberN
	AttributeValueMemberBOOL = types.AttributeValueMemberBOOL
	AttributeValueMemberM    = types.AttributeValueMemberM
)

// Expression builder types.
type (
	Expression       = expression.Expression
	ConditionBuilder = expression.ConditionBuilder
	UpdateBuilder    = expression.UpdateBuilder
	KeyBuilder       = expression.KeyBuilder
)

// Options is the DynamoDB client options type.
// Re-exported so adapter-defined interfaces can reference optFns variadic params.
type Options = dynamodb.Options

// ---------------------------------------------------------------------------
// AWS helper re-exports so adapters avoid importing the aws top-level package.
// ---------------------------------------------------------------------------

// Bool returns a pointer to a bool value.
var Bool = aws.Bool

// String returns a pointer to a string value.
var String = aws.String

// Int32 returns a pointer to an int32 value.
var Int32 = aws.Int32

// MarshalMap serializes a Go value into a DynamoDB attribute value map.
var MarshalMap = attributevalue.MarshalMap

// UnmarshalMap deserializes a DynamoDB attribute value map into a Go value.
var UnmarshalMap = attributevalue.UnmarshalMap

// UnmarshalListOfMaps deserializes a slice of attribute value maps.
var UnmarshalListOfMaps = attributevalue.UnmarshalListOfMaps

// ---------------------------------------------------------------------------
// Expression builder re-exports.
// ---------------------------------------------------------------------------

// Name, Value and Key build expression operands.
var (
	Name  = expression.Name
	Value = expression.Value
	Key   = expression.Key
)

// NewBuilder starts an expression.Builder.
var NewBuilder = expression.NewBuilder

// Set starts an update expression with a SET clause.
var Set = expression.Set

// KeyEqual builds a key condition "key = value".
var KeyEqual = expression.KeyEqual

// ---------------------------------------------------------------------------
// Error classification helpers. Adapters check error types without SDK import.
// ---------------------------------------------------------------------------

// IsConditionalCheckFailed reports whether err is a DynamoDB
// ConditionalCheckFailedException.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// ErrConditionalCheckFailed returns a ConditionalCheckFailedException suitable
// for testing. Production code should never construct this error; DynamoDB
// returns it.
func ErrConditionalCheckFailed() error {
	return &types.ConditionalCheckFailedException{
		Message: aws.String("The conditional request failed"),
	}
}

// IsThrottled reports whether err is a throughput or request-limit rejection.
func IsThrottled(err error) bool {
	var pte *types.ProvisionedThroughputExceededException
	var rle *types.RequestLimitExceeded
	return errors.As(err, &pte) || errors.As(err, &rle)
}

// ErrThrottled returns a ProvisionedThroughputExceededException for tests.
func ErrThrottled() error {
	return &types.ProvisionedThroughputExceededException{
		Message: aws.String("Rate of requests exceeds the allowed throughput"),
	}
}
