// Package common provides shared integration-test infrastructure: a
// LocalStack container pre-loaded with the orders/order_events/locks
// tables and the run-artifact bucket the engine expects.
package common

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// OrdersTable, OrderEventsTable, LocksTable and Bucket name the
	// fixtures every Env provisions. The table names match the defaults in
	// internal/common's sample config; Bucket is a test-only name.
	OrdersTable      = "railyard-orders"
	OrderEventsTable = "railyard-order-events"
	LocksTable       = "railyard-locks"
	Bucket           = "railyard-test"
)

var (
	containerOnce   sync.Once
	containerError  error
	sharedContainer testcontainers.Container
	sharedEndpoint  string
)

// Env is an isolated LocalStack environment shared DynamoDB/S3 clients
// point at. One container is reused across a test binary's run; each
// NewEnv call provisions fresh tables/bucket so tests don't interfere.
type Env struct {
	t      *testing.T
	ctx    context.Context
	cancel context.CancelFunc

	Endpoint string
	DynamoDB *dynamodb.Client
	S3       *s3.Client
}

// NewEnv starts (or reuses) a LocalStack container and returns an Env
// with the orders/order_events/locks tables and the artifact bucket
// freshly created. Skipped unless RAILYARD_TEST_DOCKER=true.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	if os.Getenv("RAILYARD_TEST_DOCKER") != "true" {
		t.Skip("Docker tests disabled (set RAILYARD_TEST_DOCKER=true to enable)")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	if err := startSharedContainer(ctx); err != nil {
		cancel()
		t.Fatalf("failed to start LocalStack container: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		cancel()
		t.Fatalf("failed to load aws config: %v", err)
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(sharedEndpoint)
	})
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(sharedEndpoint)
		o.UsePathStyle = true
	})

	env := &Env{
		t:        t,
		ctx:      ctx,
		cancel:   cancel,
		Endpoint: sharedEndpoint,
		DynamoDB: ddbClient,
		S3:       s3Client,
	}

	if err := env.provisionTables(); err != nil {
		cancel()
		t.Fatalf("failed to provision tables: %v", err)
	}
	if err := env.provisionBucket(); err != nil {
		cancel()
		t.Fatalf("failed to provision bucket: %v", err)
	}

	t.Logf("LocalStack environment ready: %s", sharedEndpoint)

	return env
}

// startSharedContainer brings up one LocalStack instance per test
// binary run; DynamoDB/S3 state is cheap enough that tests provision
// their own tables/bucket rather than needing container-per-test
// isolation.
func startSharedContainer(ctx context.Context) error {
	containerOnce.Do(func() {
		req := testcontainers.ContainerRequest{
			Image:        "localstack/localstack:3.0",
			ExposedPorts: []string{"4566/tcp"},
			Env: map[string]string{
				"SERVICES":       "dynamodb,s3,ssm,secretsmanager,sfn,lambda,codebuild",
				"DEFAULT_REGION": "us-east-1",
			},
			WaitingFor: wait.ForHTTP("/_localstack/health").WithPort("4566/tcp").WithStartupTimeout(90 * time.Second),
		}

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			containerError = fmt.Errorf("start localstack: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			containerError = fmt.Errorf("get host: %w", err)
			return
		}
		mapped, err := container.MappedPort(ctx, "4566/tcp")
		if err != nil {
			containerError = fmt.Errorf("get mapped port: %w", err)
			return
		}

		sharedContainer = container
		sharedEndpoint = fmt.Sprintf("http://%s:%s", host, mapped.Port())
	})
	return containerError
}

func (e *Env) provisionTables() error {
	// OrdersTable and LocksTable key on the single composite "pk" attribute
	// the client builds from run_id (see dynamo.orderItem/lockItem); only
	// OrderEventsTable uses a real two-attribute hash/range key.
	tables := []struct {
		name string
		pk   string
		sk   string
	}{
		{OrdersTable, "pk", ""},
		{OrderEventsTable, "trace_id", "sk"},
		{LocksTable, "pk", ""},
	}

	for _, tbl := range tables {
		attrs := []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(tbl.pk), AttributeType: ddbtypes.ScalarAttributeTypeS},
		}
		keys := []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(tbl.pk), KeyType: ddbtypes.KeyTypeHash},
		}
		if tbl.sk != "" {
			attrs = append(attrs, ddbtypes.AttributeDefinition{AttributeName: aws.String(tbl.sk), AttributeType: ddbtypes.ScalarAttributeTypeS})
			keys = append(keys, ddbtypes.KeySchemaElement{AttributeName: aws.String(tbl.sk), KeyType: ddbtypes.KeyTypeRange})
		}

		_, err := e.DynamoDB.CreateTable(e.ctx, &dynamodb.CreateTableInput{
			TableName:            aws.String(tbl.name),
			AttributeDefinitions: attrs,
			KeySchema:            keys,
			BillingMode:          ddbtypes.BillingModePayPerRequest,
		})
		if err != nil && !isResourceInUse(err) {
			return fmt.Errorf("create table %s: %w", tbl.name, err)
		}
	}
	return nil
}

func (e *Env) provisionBucket() error {
	_, err := e.S3.CreateBucket(e.ctx, &s3.CreateBucketInput{Bucket: aws.String(Bucket)})
	if err != nil && !isResourceInUse(err) {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func isResourceInUse(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ResourceInUseException") ||
		strings.Contains(msg, "BucketAlreadyOwnedByYou") ||
		strings.Contains(msg, "BucketAlreadyExists")
}

// Cleanup releases the test's context. The shared LocalStack container
// itself is left running for the rest of the test binary's run.
func (e *Env) Cleanup() {
	if e == nil {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// Context returns the test context.
func (e *Env) Context() context.Context {
	return e.ctx
}
