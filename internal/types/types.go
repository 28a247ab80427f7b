// Package types contains all shared type definitions and structs.
package types

import (
	"strings"
	"time"
)

// PrincipalType tags an assignment principal as a user or a group
type PrincipalType string

const (
	PrincipalTypeUser  PrincipalType = "USER"
	PrincipalTypeGroup PrincipalType = "GROUP"
)

// Principal is a user or group reference inside an assignment record
type Principal struct {
	ID   string        `json:"principal_id"`
	Type PrincipalType `json:"principal_type"`
}

// Assignment is a grant of application access to a principal
type Assignment struct {
	ApplicationARN string    `json:"application_arn"`
	Principal      Principal `json:"principal"`
}

// Directory identifies the Identity Center instance discovered at startup
type Directory struct {
	IdentityStoreID string `json:"identity_store_id"`
	InstanceARN     string `json:"instance_arn"`
	OwnerAccountID  string `json:"owner_account_id,omitempty"`
}

// InstanceID returns the trailing ssoins-... segment of the instance ARN
func (d Directory) InstanceID() string {
	if idx := strings.LastIndex(d.InstanceARN, "/"); idx >= 0 {
		return d.InstanceARN[idx+1:]
	}
	return ""
}

// Partition returns the ARN partition of the instance, defaulting to "aws"
func (d Directory) Partition() string {
	parts := strings.Split(d.InstanceARN, ":")
	if len(parts) > 1 && parts[1] != "" {
		return parts[1]
	}
	return "aws"
}

// UserProfile represents a resolved Identity Center user
type UserProfile struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name,omitempty"`
	Email        string `json:"email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	LastActivity string `json:"last_activity,omitempty"`

	// Degraded is set when the directory lookup failed and only the identifier is known
	Degraded bool `json:"degraded,omitempty"`
}

// DegradedProfile returns the identifier-only record produced when a lookup fails
func DegradedProfile(userID string) UserProfile {
	return UserProfile{UserID: userID, Degraded: true}
}

// Group represents an Identity Center group and its resolved members
type Group struct {
	ID          string        `json:"group_id"`
	DisplayName string        `json:"display_name"`
	Members     []UserProfile `json:"members,omitempty"`
}

// GroupSummary aggregates the groups assigned to an application
type GroupSummary struct {
	ApplicationARN string  `json:"application_arn"`
	Groups         []Group `json:"groups"`
	TotalUsers     int     `json:"total_users"`
	UniqueUsers    int     `json:"unique_users"`
}

// QueryConfig holds the Athena query-and-report settings
type QueryConfig struct {
	Database       string        `mapstructure:"database" json:"database"`
	Catalog        string        `mapstructure:"catalog" json:"catalog,omitempty"`
	WorkGroup      string        `mapstructure:"workgroup" json:"workgroup,omitempty"`
	OutputLocation string        `mapstructure:"output_location" json:"output_location"`
	SQL            string        `mapstructure:"sql" json:"sql"`
	PollInterval   time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	LocalPath      string        `mapstructure:"local_path" json:"local_path"`
}

// EmailConfig holds the outbound mail settings
type EmailConfig struct {
	Transport    string   `mapstructure:"transport" json:"transport"`
	SMTPHost     string   `mapstructure:"smtp_host" json:"smtp_host,omitempty"`
	SMTPPort     int      `mapstructure:"smtp_port" json:"smtp_port,omitempty"`
	SMTPUsername string   `mapstructure:"smtp_username" json:"smtp_username,omitempty"`
	PasswordRef  string   `mapstructure:"password_ref" json:"password_ref,omitempty"`
	Sender       string   `mapstructure:"sender" json:"sender"`
	Recipients   []string `mapstructure:"recipients" json:"recipients"`
	Subject      string   `mapstructure:"subject" json:"subject"`
	Body         string   `mapstructure:"body" json:"body"`
}

// Config represents the application configuration
type Config struct {
	AWSRegion         string      `mapstructure:"aws_region" json:"aws_region"`
	LogLevel          string      `mapstructure:"log_level" json:"log_level"`
	LogFormat         string      `mapstructure:"log_format" json:"log_format"`
	ManagementRoleARN string      `mapstructure:"mgmt_role_arn" json:"mgmt_role_arn,omitempty"`
	RequestsPerSecond int         `mapstructure:"requests_per_second" json:"requests_per_second"`
	ApplicationARN    string      `mapstructure:"application_arn" json:"application_arn,omitempty"`
	OutputFile        string      `mapstructure:"output_file" json:"output_file,omitempty"`
	Query             QueryConfig `mapstructure:"query" json:"query"`
	Email             EmailConfig `mapstructure:"email" json:"email"`
}
