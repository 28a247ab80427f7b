package query

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenaTypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAthena struct {
	startInput *athena.StartQueryExecutionInput
	startErr   error

	// states are returned in order by successive GetQueryExecution calls
	states         []athenaTypes.QueryExecutionState
	reason         string
	outputLocation string
	polls          int
}

func (m *mockAthena) StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	m.startInput = params
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("qe-123")}, nil
}

func (m *mockAthena) GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	state := m.states[len(m.states)-1]
	if m.polls < len(m.states) {
		state = m.states[m.polls]
	}
	m.polls++

	status := &athenaTypes.QueryExecutionStatus{State: state}
	if m.reason != "" {
		status.StateChangeReason = aws.String(m.reason)
	}

	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athenaTypes.QueryExecution{
			QueryExecutionId:    params.QueryExecutionId,
			Status:              status,
			ResultConfiguration: &athenaTypes.ResultConfiguration{OutputLocation: aws.String(m.outputLocation)},
		},
	}, nil
}

type mockS3 struct {
	bucket string
	key    string
	body   string
	err    error
	calls  int
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.calls++
	m.bucket = aws.ToString(params.Bucket)
	m.key = aws.ToString(params.Key)
	if m.err != nil {
		return nil, m.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(m.body))}, nil
}

func testOptions() Options {
	return Options{
		Database:       "amazon_q_metrics",
		OutputLocation: "s3://metrics-bucket/QDeveloperLogs/by_user/",
		PollInterval:   time.Millisecond,
	}
}

func TestSubmit(t *testing.T) {
	client := &mockAthena{}
	pipeline := NewPipelineWithAPIs(client, &mockS3{}, testOptions(), nil)
	pipeline.newRequestToken = func() string { return "token-1" }

	executionID, err := pipeline.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "qe-123", executionID)

	input := client.startInput
	require.NotNil(t, input)
	assert.Equal(t, "SELECT 1", aws.ToString(input.QueryString))
	assert.Equal(t, "token-1", aws.ToString(input.ClientRequestToken))
	assert.Equal(t, "amazon_q_metrics", aws.ToString(input.QueryExecutionContext.Database))
	assert.Nil(t, input.QueryExecutionContext.Catalog)
	assert.Equal(t, "s3://metrics-bucket/QDeveloperLogs/by_user/", aws.ToString(input.ResultConfiguration.OutputLocation))
	assert.Nil(t, input.WorkGroup)
}

func TestSubmitWorkGroupWithoutOutputLocation(t *testing.T) {
	client := &mockAthena{}
	options := testOptions()
	options.OutputLocation = ""
	options.WorkGroup = "reporting"
	options.Catalog = "AwsDataCatalog"
	pipeline := NewPipelineWithAPIs(client, &mockS3{}, options, nil)

	_, err := pipeline.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.Nil(t, client.startInput.ResultConfiguration)
	assert.Equal(t, "reporting", aws.ToString(client.startInput.WorkGroup))
	assert.Equal(t, "AwsDataCatalog", aws.ToString(client.startInput.QueryExecutionContext.Catalog))
	assert.NotEmpty(t, aws.ToString(client.startInput.ClientRequestToken))
}

func TestSubmitError(t *testing.T) {
	client := &mockAthena{startErr: &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "bad sql"}}
	pipeline := NewPipelineWithAPIs(client, &mockS3{}, testOptions(), nil)

	_, err := pipeline.Submit(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StartQueryExecution failed: [InvalidRequestException] bad sql")
}

func TestWait(t *testing.T) {
	tests := []struct {
		name       string
		states     []athenaTypes.QueryExecutionState
		reason     string
		wantErr    bool
		wantState  athenaTypes.QueryExecutionState
		wantReason string
		wantPolls  int
	}{
		{
			name:      "succeeds after running",
			states:    []athenaTypes.QueryExecutionState{athenaTypes.QueryExecutionStateQueued, athenaTypes.QueryExecutionStateRunning, athenaTypes.QueryExecutionStateSucceeded},
			wantState: athenaTypes.QueryExecutionStateSucceeded,
			wantPolls: 3,
		},
		{
			name:       "failed with reason",
			states:     []athenaTypes.QueryExecutionState{athenaTypes.QueryExecutionStateRunning, athenaTypes.QueryExecutionStateFailed},
			reason:     "INSUFFICIENT_PERMISSIONS",
			wantErr:    true,
			wantState:  athenaTypes.QueryExecutionStateFailed,
			wantReason: "INSUFFICIENT_PERMISSIONS",
			wantPolls:  2,
		},
		{
			name:       "cancelled without reason",
			states:     []athenaTypes.QueryExecutionState{athenaTypes.QueryExecutionStateCancelled},
			wantErr:    true,
			wantState:  athenaTypes.QueryExecutionStateCancelled,
			wantReason: "Unknown error",
			wantPolls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockAthena{states: tt.states, reason: tt.reason, outputLocation: "s3://b/k.csv"}
			pipeline := NewPipelineWithAPIs(client, &mockS3{}, testOptions(), nil)

			execution, err := pipeline.Wait(context.Background(), "qe-123")
			assert.Equal(t, tt.wantState, execution.State)
			assert.Equal(t, tt.wantPolls, client.polls)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "s3://b/k.csv", execution.OutputLocation)
				return
			}

			var failed *QueryFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, "qe-123", failed.ExecutionID)
			assert.Equal(t, tt.wantState, failed.State)
			assert.Equal(t, tt.wantReason, failed.Reason)
			assert.Contains(t, err.Error(), tt.wantReason)
		})
	}
}

func TestWaitContextCancelled(t *testing.T) {
	client := &mockAthena{states: []athenaTypes.QueryExecutionState{athenaTypes.QueryExecutionStateRunning}}
	options := testOptions()
	options.PollInterval = time.Hour
	pipeline := NewPipelineWithAPIs(client, &mockS3{}, options, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Wait(ctx, "qe-123")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.polls)
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		location   string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{location: "s3://metrics-bucket/QDeveloperLogs/by_user/qe-123.csv", wantBucket: "metrics-bucket", wantKey: "QDeveloperLogs/by_user/qe-123.csv"},
		{location: "s3://bucket/key", wantBucket: "bucket", wantKey: "key"},
		{location: "s3://bucket", wantErr: true},
		{location: "s3://bucket/", wantErr: true},
		{location: "https://bucket/key", wantErr: true},
		{location: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestDownload(t *testing.T) {
	s3Client := &mockS3{body: "UserID,latest_activity_date\nu1,2024-05-01\n"}
	pipeline := NewPipelineWithAPIs(&mockAthena{}, s3Client, testOptions(), nil)

	localPath := filepath.Join(t.TempDir(), "out", "athena_results.csv")
	require.NoError(t, pipeline.Download(context.Background(), "s3://metrics-bucket/results/qe-123.csv", localPath))

	assert.Equal(t, "metrics-bucket", s3Client.bucket)
	assert.Equal(t, "results/qe-123.csv", s3Client.key)

	content, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "UserID,latest_activity_date\nu1,2024-05-01\n", string(content))
}

func TestDownloadError(t *testing.T) {
	s3Client := &mockS3{err: errors.New("access denied")}
	pipeline := NewPipelineWithAPIs(&mockAthena{}, s3Client, testOptions(), nil)

	localPath := filepath.Join(t.TempDir(), "athena_results.csv")
	err := pipeline.Download(context.Background(), "s3://b/k.csv", localPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GetObject failed")
	assert.NoFileExists(t, localPath)
}

func TestRun(t *testing.T) {
	client := &mockAthena{
		states:         []athenaTypes.QueryExecutionState{athenaTypes.QueryExecutionStateRunning, athenaTypes.QueryExecutionStateSucceeded},
		outputLocation: "s3://metrics-bucket/results/qe-123.csv",
	}
	s3Client := &mockS3{body: "a,b\n"}
	pipeline := NewPipelineWithAPIs(client, s3Client, testOptions(), nil)

	localPath := filepath.Join(t.TempDir(), "athena_results.csv")
	path, err := pipeline.Run(context.Background(), "SELECT 1", localPath)
	require.NoError(t, err)
	assert.Equal(t, localPath, path)
	assert.FileExists(t, localPath)
	assert.Equal(t, 1, s3Client.calls)
}

func TestRunFailedQuerySkipsDownload(t *testing.T) {
	client := &mockAthena{
		states: []athenaTypes.QueryExecutionState{athenaTypes.QueryExecutionStateFailed},
		reason: "INSUFFICIENT_PERMISSIONS",
	}
	s3Client := &mockS3{}
	pipeline := NewPipelineWithAPIs(client, s3Client, testOptions(), nil)

	localPath := filepath.Join(t.TempDir(), "athena_results.csv")
	_, err := pipeline.Run(context.Background(), "SELECT 1", localPath)

	var failed *QueryFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", failed.Reason)
	assert.Equal(t, 0, s3Client.calls)
	assert.NoFileExists(t, localPath)
}

func TestRunWithoutResultLocation(t *testing.T) {
	client := &mockAthena{states: []athenaTypes.QueryExecutionState{athenaTypes.QueryExecutionStateSucceeded}}
	s3Client := &mockS3{}
	pipeline := NewPipelineWithAPIs(client, s3Client, testOptions(), nil)

	_, err := pipeline.Run(context.Background(), "SELECT 1", filepath.Join(t.TempDir(), "x.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a result location")
	assert.Equal(t, 0, s3Client.calls)
}
