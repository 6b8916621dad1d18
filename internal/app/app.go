// Package app wires the engine's store adapters, back-end runners, and
// component dependencies from a loaded Config into ready-to-use
// Initiator/Controller instances, the shared core used by cmd/initiator,
// cmd/controller, and cmd/watchdog — mirroring the teacher's own
// internal/app.App as the one place that assembles the whole dependency
// graph for its cmd/ entrypoints.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscodebuild "github.com/aws/aws-sdk-go-v2/service/codebuild"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssecretsmanager "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awssfn "github.com/aws/aws-sdk-go-v2/service/sfn"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	backendagent "github.com/railyard-run/railyard/internal/backend/agent"
	backendcodebuild "github.com/railyard-run/railyard/internal/backend/codebuild"
	backendlambda "github.com/railyard-run/railyard/internal/backend/lambda"
	backendsfn "github.com/railyard-run/railyard/internal/backend/sfn"
	"github.com/railyard-run/railyard/internal/common"
	"github.com/railyard-run/railyard/internal/engine/controller"
	"github.com/railyard-run/railyard/internal/engine/initiator"
	"github.com/railyard-run/railyard/internal/engine/repackager"
	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/models"
	"github.com/railyard-run/railyard/internal/store/dynamo"
	"github.com/railyard-run/railyard/internal/store/objectstore"
	"github.com/railyard-run/railyard/internal/store/retry"
	"github.com/railyard-run/railyard/internal/store/secrets"
	vcsgithub "github.com/railyard-run/railyard/internal/vcs/github"
)

// App holds every initialized adapter and engine component, assembled once
// at process start from Config.
type App struct {
	Config *common.Config
	Logger *common.Logger

	Orders  interfaces.OrderStore
	Events  interfaces.OrderEventStore
	Locks   interfaces.LockStore
	Objects interfaces.ObjectStore
	Done    interfaces.ObjectStore

	Initiator  *initiator.Initiator
	Controller *controller.Controller
}

// NewApp loads configuration from configPath (plus RAILYARD_* env overrides),
// constructs every AWS client, and wires the full dependency graph.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := common.NewLogger(cfg.Logging.Level)

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	policy := retry.Policy{
		BaseDelay:   cfg.Engine.GetRetryBaseDelay(),
		MaxDelay:    cfg.Engine.GetRetryMaxDelay(),
		MaxAttempts: cfg.Engine.GetRetryMaxAttempts(),
	}

	dynamoClient := dynamo.New(
		awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		}),
		cfg.AWS.DynamoDB.OrdersTable, cfg.AWS.DynamoDB.OrderEventsTable, cfg.AWS.DynamoDB.LocksTable, policy,
	)

	s3Client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			o.UsePathStyle = true
		}
	})
	objects := objectstore.New(s3Client, cfg.AWS.S3.Bucket, policy)

	ssmClient := awsssm.NewFromConfig(awsCfg, func(o *awsssm.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	secretsManagerClient := awssecretsmanager.NewFromConfig(awsCfg, func(o *awssecretsmanager.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	paramStore := secrets.NewParameterStore(ssmClient, policy)
	secretStore := secrets.NewSecretStore(secretsManagerClient, policy)
	gitCreds := secrets.NewGitCredentials(secretStore)

	repack := repackager.New(repackager.Dependencies{
		Credentials:   gitCreds,
		Params:        paramStore,
		Secrets:       secretStore,
		Objects:       objects,
		CallbackTTL:   cfg.AWS.S3.GetPresignTTL(),
		WorkDir:       cfg.Repackager.WorkDir,
		CloneDepth:    cfg.Repackager.GetCloneDepth(),
		CloneTimeout:  cfg.Repackager.GetCloneTimeout(),
		SopsKeyPrefix: cfg.AWS.SecretsManager.SopsKeyPrefix,
		SopsKeyTTL:    cfg.AWS.SecretsManager.GetSopsKeyTTL(),
	})

	var vcs interfaces.CommentCapability
	if cfg.VCS.GithubTokenRef != "" {
		token, err := secretStore.GetSecret(ctx, cfg.VCS.GithubTokenRef)
		if err != nil {
			return nil, fmt.Errorf("resolve github token: %w", err)
		}
		vcs = vcsgithub.New(ctx, token)
	}

	init := initiator.New(initiator.Dependencies{
		Orders:     dynamoClient,
		Events:     dynamoClient,
		Objects:    objects,
		Repackager: repack,
		VCS:        vcs,
	})

	lambdaClient := awslambda.NewFromConfig(awsCfg, func(o *awslambda.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	codebuildClient := awscodebuild.NewFromConfig(awsCfg, func(o *awscodebuild.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})

	runners := map[models.ExecutionTarget]interfaces.Runner{
		models.ExecutionTargetFunction: backendlambda.New(lambdaClient, cfg.AWS.Lambda.FunctionPrefix, cfg.AWS.S3.Bucket, policy),
		models.ExecutionTargetBuild:    backendcodebuild.New(codebuildClient, cfg.AWS.CodeBuild.ProjectPrefix, cfg.AWS.S3.Bucket, policy),
		models.ExecutionTargetAgent:    backendagent.New(ssmClient, "", cfg.AWS.S3.Bucket, policy),
	}

	var watchdogRecorder interfaces.WatchdogHandleRecorder
	if cfg.AWS.StepFunctions.StateMachineARN != "" {
		sfnClient := awssfn.NewFromConfig(awsCfg, func(o *awssfn.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		watchdogRecorder = backendsfn.New(sfnClient, cfg.AWS.StepFunctions.StateMachineARN, policy)
	}

	ctrl := controller.New(controller.Dependencies{
		Locks:          dynamoClient,
		Orders:         dynamoClient,
		Events:         dynamoClient,
		Objects:        objects,
		Done:           objects,
		Watchdog:       watchdogRecorder,
		Runners:        runners,
		LockTTL:        int64(cfg.Engine.GetLockTTL().Seconds()),
		DispatchFanout: cfg.Engine.GetDispatchFanout(),
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Orders:     dynamoClient,
		Events:     dynamoClient,
		Locks:      dynamoClient,
		Objects:    objects,
		Done:       objects,
		Initiator:  init,
		Controller: ctrl,
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg *common.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
