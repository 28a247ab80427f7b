// Package query runs Athena queries and fetches their result objects from S3.
package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenaTypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	awsclient "identity-center-reporter/internal/aws"
)

const defaultPollInterval = 5 * time.Second

// AthenaAPI is the subset of the Athena client used to run a query
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

// S3API is the subset of the S3 client used to fetch result objects
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures where queries run and how often their status is polled
type Options struct {
	Database       string
	Catalog        string
	WorkGroup      string
	OutputLocation string
	PollInterval   time.Duration
}

// Execution is the terminal view of a query execution
type Execution struct {
	ID             string
	State          athenaTypes.QueryExecutionState
	Reason         string
	OutputLocation string
}

// QueryFailedError reports a query that finished FAILED or CANCELLED
type QueryFailedError struct {
	ExecutionID string
	State       athenaTypes.QueryExecutionState
	Reason      string
}

// Error implements the error interface
func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("query %s finished in state %s: %s", e.ExecutionID, e.State, e.Reason)
}

// Pipeline submits a query, waits for it on a fixed interval, and downloads the result object
type Pipeline struct {
	athena  AthenaAPI
	s3      S3API
	options Options
	logger  *slog.Logger

	newRequestToken func() string
}

// NewPipeline creates a Pipeline from an AWS config
func NewPipeline(cfg aws.Config, options Options, logger *slog.Logger) *Pipeline {
	return NewPipelineWithAPIs(athena.NewFromConfig(cfg), s3.NewFromConfig(cfg), options, logger)
}

// NewPipelineWithAPIs creates a Pipeline over existing API implementations
func NewPipelineWithAPIs(athenaClient AthenaAPI, s3Client S3API, options Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = defaultPollInterval
	}

	return &Pipeline{
		athena:          athenaClient,
		s3:              s3Client,
		options:         options,
		logger:          logger,
		newRequestToken: uuid.NewString,
	}
}

// Submit starts the query and returns its execution id
func (p *Pipeline) Submit(ctx context.Context, sql string) (string, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString:        aws.String(sql),
		ClientRequestToken: aws.String(p.newRequestToken()),
		QueryExecutionContext: &athenaTypes.QueryExecutionContext{
			Database: aws.String(p.options.Database),
		},
	}
	if p.options.Catalog != "" {
		input.QueryExecutionContext.Catalog = aws.String(p.options.Catalog)
	}
	if p.options.OutputLocation != "" {
		input.ResultConfiguration = &athenaTypes.ResultConfiguration{
			OutputLocation: aws.String(p.options.OutputLocation),
		}
	}
	if p.options.WorkGroup != "" {
		input.WorkGroup = aws.String(p.options.WorkGroup)
	}

	result, err := p.athena.StartQueryExecution(ctx, input)
	if err != nil {
		return "", awsclient.WrapAWSError(err, "StartQueryExecution")
	}

	executionID := aws.ToString(result.QueryExecutionId)
	if executionID == "" {
		return "", fmt.Errorf("StartQueryExecution returned no execution id")
	}

	p.logger.Info("query submitted",
		"execution_id", executionID,
		"database", p.options.Database)

	return executionID, nil
}

// Wait polls the execution until it reaches SUCCEEDED, FAILED or CANCELLED. FAILED and
// CANCELLED are returned as *QueryFailedError carrying the service's reason.
func (p *Pipeline) Wait(ctx context.Context, executionID string) (Execution, error) {
	for {
		result, err := p.athena.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(executionID),
		})
		if err != nil {
			return Execution{}, awsclient.WrapAWSError(err, "GetQueryExecution")
		}

		execution := toExecution(executionID, result.QueryExecution)

		switch execution.State {
		case athenaTypes.QueryExecutionStateSucceeded:
			p.logger.Info("query completed successfully", "execution_id", executionID)
			return execution, nil

		case athenaTypes.QueryExecutionStateFailed, athenaTypes.QueryExecutionStateCancelled:
			reason := execution.Reason
			if reason == "" {
				reason = "Unknown error"
			}
			p.logger.Error("query did not succeed",
				"execution_id", executionID,
				"state", execution.State,
				"reason", reason)
			return execution, &QueryFailedError{ExecutionID: executionID, State: execution.State, Reason: reason}
		}

		p.logger.Debug("query still running, waiting",
			"execution_id", executionID,
			"state", execution.State,
			"interval", p.options.PollInterval)

		timer := time.NewTimer(p.options.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return execution, fmt.Errorf("waiting for query %s: %w", executionID, ctx.Err())
		case <-timer.C:
		}
	}
}

func toExecution(executionID string, qe *athenaTypes.QueryExecution) Execution {
	execution := Execution{ID: executionID}
	if qe == nil {
		return execution
	}
	if qe.Status != nil {
		execution.State = qe.Status.State
		execution.Reason = aws.ToString(qe.Status.StateChangeReason)
	}
	if qe.ResultConfiguration != nil {
		execution.OutputLocation = aws.ToString(qe.ResultConfiguration.OutputLocation)
	}
	return execution
}

// ParseS3URI splits s3://bucket/key into bucket and key
func ParseS3URI(location string) (bucket string, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 location %q: expected s3://bucket/key", location)
	}

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 location %q: bucket and key are required", location)
	}

	return bucket, key, nil
}

// Download fetches the object at location into localPath
func (p *Pipeline) Download(ctx context.Context, location string, localPath string) error {
	bucket, key, err := ParseS3URI(location)
	if err != nil {
		return err
	}

	result, err := p.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return awsclient.WrapAWSError(err, "GetObject")
	}
	defer result.Body.Close()

	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	written, err := io.Copy(file, result.Body)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", localPath, err)
	}

	p.logger.Info("query results saved",
		"location", location,
		"path", localPath,
		"bytes", written)

	return nil
}

// Run submits sql, waits for it, and downloads the result object to localPath
func (p *Pipeline) Run(ctx context.Context, sql string, localPath string) (string, error) {
	executionID, err := p.Submit(ctx, sql)
	if err != nil {
		return "", err
	}

	execution, err := p.Wait(ctx, executionID)
	if err != nil {
		return "", err
	}

	if execution.OutputLocation == "" {
		return "", fmt.Errorf("query %s succeeded without a result location", executionID)
	}

	if err := p.Download(ctx, execution.OutputLocation, localPath); err != nil {
		return "", err
	}

	return localPath, nil
}
