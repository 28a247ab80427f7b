package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-center-reporter/internal/mail"
	"identity-center-reporter/internal/report"
	"identity-center-reporter/internal/types"
)

type fakeSecrets struct {
	values map[string]string
	refs   []string
}

func (f *fakeSecrets) Resolve(ctx context.Context, ref string) (string, error) {
	f.refs = append(f.refs, ref)
	if ref == "" {
		return "", nil
	}
	value, ok := f.values[ref]
	if !ok {
		return "", errors.New("secret not found")
	}
	return value, nil
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"app-users", "groups", "activity", "query-report", "version"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "region", "log-level", "log-format", "mgmt-role-arn", "requests-per-second"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}

	appUsers, _, err := root.Find([]string{"app-users"})
	require.NoError(t, err)
	assert.NotNil(t, appUsers.Flags().Lookup("application"))
	assert.NotNil(t, appUsers.Flags().Lookup("output"))
	assert.NotNil(t, appUsers.Flags().Lookup("columns"))
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version: "+Version)
	assert.Contains(t, out.String(), "Git Commit: "+GitCommit)
}

func TestAppUsersRequiresApplication(t *testing.T) {
	t.Setenv("ICR_APPLICATION_ARN", "")
	root := NewRootCommand()
	root.SetArgs([]string{"app-users", "--log-level", "error"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application_arn")
}

func TestColumnsFor(t *testing.T) {
	columns, err := columnsFor("default")
	require.NoError(t, err)
	assert.Equal(t, report.DefaultColumns, columns)

	columns, err = columnsFor("PROFILE")
	require.NoError(t, err)
	assert.Equal(t, report.ProfileColumns, columns)

	_, err = columnsFor("everything")
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "out/users.csv", outputPath("out/users.csv", "app_users"))
	assert.Regexp(t, `^app_users_\d{8}_\d{6}\.csv$`, outputPath("", "app_users"))
}

func TestNewSender(t *testing.T) {
	secrets := &fakeSecrets{values: map[string]string{"env:SMTP_PASSWORD": "resolved"}}

	tests := []struct {
		name     string
		email    types.EmailConfig
		wantType interface{}
		wantErr  string
	}{
		{
			name:     "smtp with password reference",
			email:    types.EmailConfig{Transport: "smtp", SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPUsername: "reports@example.com", PasswordRef: "env:SMTP_PASSWORD"},
			wantType: &mail.SMTPSender{},
		},
		{
			name:     "ses",
			email:    types.EmailConfig{Transport: "SES"},
			wantType: &mail.SESSender{},
		},
		{
			name:    "unresolvable password",
			email:   types.EmailConfig{Transport: "smtp", SMTPHost: "smtp.example.com", PasswordRef: "env:MISSING"},
			wantErr: "failed to resolve SMTP password",
		},
		{
			name:    "unknown transport",
			email:   types.EmailConfig{Transport: "carrier-pigeon"},
			wantErr: "unsupported email transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(context.Background(), tt.email, aws.Config{Region: "us-east-1"}, secrets, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, sender)
		})
	}
}

func TestNewMessage(t *testing.T) {
	email := types.EmailConfig{
		Sender:     "reports@example.com",
		Recipients: []string{"ops@example.com"},
		Subject:    "Athena Query Results",
		Body:       "Please find attached the results of your Athena query.",
	}

	msg := NewMessage(email)
	msg.To[0] = "changed@example.com"

	assert.Equal(t, "reports@example.com", msg.From)
	assert.Equal(t, "Athena Query Results", msg.Subject)
	assert.Equal(t, "ops@example.com", email.Recipients[0])
}
