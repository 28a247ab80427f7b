package aws

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitystoreTypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssoadminTypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"golang.org/x/time/rate"

	"identity-center-reporter/internal/types"
)

const defaultPageSize = 100

// SSOAdminAPI is the subset of the sso-admin client used for instance and assignment discovery
type SSOAdminAPI interface {
	ListInstances(ctx context.Context, params *ssoadmin.ListInstancesInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListInstancesOutput, error)
	ListApplicationAssignments(ctx context.Context, params *ssoadmin.ListApplicationAssignmentsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListApplicationAssignmentsOutput, error)
}

// IdentityStoreAPI is the subset of the identitystore client used to resolve principals
type IdentityStoreAPI interface {
	DescribeUser(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error)
	DescribeGroup(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error)
	ListGroupMemberships(ctx context.Context, params *identitystore.ListGroupMembershipsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupMembershipsOutput, error)
}

// IdentityCenterClient wraps sso-admin and identitystore behind the five directory operations.
// Calls are sequential and share one rate limiter.
type IdentityCenterClient struct {
	ssoAdmin      SSOAdminAPI
	identityStore IdentityStoreAPI
	limiter       *rate.Limiter
	logger        *slog.Logger
	pageSize      int32

	// accountLookup supplies the owner account when ListInstances omits it
	accountLookup func(ctx context.Context) (string, error)

	directory *types.Directory
}

// NewIdentityCenterClient creates a client from an AWS config
func NewIdentityCenterClient(cfg aws.Config, requestsPerSecond int, logger *slog.Logger) *IdentityCenterClient {
	return NewIdentityCenterClientWithAPIs(ssoadmin.NewFromConfig(cfg), identitystore.NewFromConfig(cfg), requestsPerSecond, logger)
}

// NewIdentityCenterClientWithAPIs creates a client over existing API implementations
func NewIdentityCenterClientWithAPIs(ssoAdmin SSOAdminAPI, identityStore IdentityStoreAPI, requestsPerSecond int, logger *slog.Logger) *IdentityCenterClient {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}

	return &IdentityCenterClient{
		ssoAdmin:      ssoAdmin,
		identityStore: identityStore,
		limiter:       limiter,
		logger:        logger,
		pageSize:      defaultPageSize,
	}
}

// SetAccountLookup installs a fallback used to expand bare application ids
func (c *IdentityCenterClient) SetAccountLookup(lookup func(ctx context.Context) (string, error)) {
	c.accountLookup = lookup
}

func (c *IdentityCenterClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ResolveDirectory returns the first Identity Center instance. The result is cached for the
// lifetime of the client.
func (c *IdentityCenterClient) ResolveDirectory(ctx context.Context) (types.Directory, error) {
	if c.directory != nil {
		return *c.directory, nil
	}

	if err := c.wait(ctx); err != nil {
		return types.Directory{}, err
	}

	result, err := c.ssoAdmin.ListInstances(ctx, &ssoadmin.ListInstancesInput{})
	if err != nil {
		return types.Directory{}, WrapAWSError(err, "ListInstances")
	}

	if len(result.Instances) == 0 || aws.ToString(result.Instances[0].IdentityStoreId) == "" {
		return types.Directory{}, ErrNoInstanceFound
	}

	instance := result.Instances[0]
	directory := types.Directory{
		IdentityStoreID: aws.ToString(instance.IdentityStoreId),
		InstanceARN:     aws.ToString(instance.InstanceArn),
		OwnerAccountID:  aws.ToString(instance.OwnerAccountId),
	}

	c.logger.Debug("resolved identity center instance",
		"identity_store_id", directory.IdentityStoreID,
		"instance_arn", directory.InstanceARN,
		"instances", len(result.Instances))

	c.directory = &directory
	return directory, nil
}

// ResolveDirectoryID returns the identity store id of the first Identity Center instance
func (c *IdentityCenterClient) ResolveDirectoryID(ctx context.Context) (string, error) {
	directory, err := c.ResolveDirectory(ctx)
	if err != nil {
		return "", err
	}
	return directory.IdentityStoreID, nil
}

// ApplicationARN expands a bare apl- application id against the discovered instance.
// Full ARNs are returned unchanged.
func (c *IdentityCenterClient) ApplicationARN(ctx context.Context, idOrARN string) (string, error) {
	if strings.HasPrefix(idOrARN, "arn:") {
		return idOrARN, nil
	}
	if !strings.HasPrefix(idOrARN, "apl-") {
		return "", fmt.Errorf("invalid application identifier %q: expected an ARN or apl- id", idOrARN)
	}

	directory, err := c.ResolveDirectory(ctx)
	if err != nil {
		return "", err
	}
	if directory.OwnerAccountID == "" && c.accountLookup != nil {
		account, err := c.accountLookup(ctx)
		if err != nil {
			return "", fmt.Errorf("cannot expand %s: %w", idOrARN, err)
		}
		directory.OwnerAccountID = account
	}
	if directory.OwnerAccountID == "" || directory.InstanceID() == "" {
		return "", fmt.Errorf("cannot expand %s: instance owner account unknown, pass the full application ARN", idOrARN)
	}

	return fmt.Sprintf("arn:%s:sso::%s:application/%s/%s",
		directory.Partition(), directory.OwnerAccountID, directory.InstanceID(), idOrARN), nil
}

// ListApplicationAssignments lists every principal assigned to the application, following
// pagination to exhaustion
func (c *IdentityCenterClient) ListApplicationAssignments(ctx context.Context, applicationARN string) ([]types.Assignment, error) {
	assignments, err := CollectPages(ctx, func(ctx context.Context, nextToken *string) ([]types.Assignment, *string, error) {
		if err := c.wait(ctx); err != nil {
			return nil, nil, err
		}

		result, err := c.ssoAdmin.ListApplicationAssignments(ctx, &ssoadmin.ListApplicationAssignmentsInput{
			ApplicationArn: aws.String(applicationARN),
			MaxResults:     aws.Int32(c.pageSize),
			NextToken:      nextToken,
		})
		if err != nil {
			return nil, nil, WrapAWSError(err, "ListApplicationAssignments")
		}

		page := make([]types.Assignment, 0, len(result.ApplicationAssignments))
		for _, assignment := range result.ApplicationAssignments {
			page = append(page, convertToAssignment(applicationARN, assignment))
		}
		return page, result.NextToken, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments for %s: %w", applicationARN, err)
	}

	return assignments, nil
}

func convertToAssignment(applicationARN string, assignment ssoadminTypes.ApplicationAssignment) types.Assignment {
	// sso-admin and our principal type share the USER/GROUP wire values
	principalType := types.PrincipalType(assignment.PrincipalType)

	arn := aws.ToString(assignment.ApplicationArn)
	if arn == "" {
		arn = applicationARN
	}

	return types.Assignment{
		ApplicationARN: arn,
		Principal: types.Principal{
			ID:   aws.ToString(assignment.PrincipalId),
			Type: principalType,
		},
	}
}

// DescribeUser looks up one user. A missing user is reported as ErrNotFound.
func (c *IdentityCenterClient) DescribeUser(ctx context.Context, directoryID string, userID string) (types.UserProfile, error) {
	if err := c.wait(ctx); err != nil {
		return types.UserProfile{}, err
	}

	result, err := c.identityStore.DescribeUser(ctx, &identitystore.DescribeUserInput{
		IdentityStoreId: aws.String(directoryID),
		UserId:          aws.String(userID),
	})
	if err != nil {
		if IsNotFoundError(err) {
			return types.UserProfile{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return types.UserProfile{}, WrapAWSError(err, "DescribeUser")
	}

	return convertToUserProfile(userID, result), nil
}

// convertToUserProfile converts AWS SDK user output to our profile type
func convertToUserProfile(userID string, user *identitystore.DescribeUserOutput) types.UserProfile {
	profile := types.UserProfile{
		UserID:      userID,
		UserName:    aws.ToString(user.UserName),
		Email:       primaryEmail(user.Emails),
		DisplayName: aws.ToString(user.DisplayName),
	}

	if user.Name != nil {
		profile.GivenName = aws.ToString(user.Name.GivenName)
		profile.FamilyName = aws.ToString(user.Name.FamilyName)
	}

	return profile
}

// primaryEmail returns the email flagged primary, falling back to the first one with a value
func primaryEmail(emails []identitystoreTypes.Email) string {
	for _, email := range emails {
		if email.Primary && aws.ToString(email.Value) != "" {
			return aws.ToString(email.Value)
		}
	}
	for _, email := range emails {
		if value := aws.ToString(email.Value); value != "" {
			return value
		}
	}
	return ""
}

// DescribeGroup looks up a group's display name
func (c *IdentityCenterClient) DescribeGroup(ctx context.Context, directoryID string, groupID string) (types.Group, error) {
	if err := c.wait(ctx); err != nil {
		return types.Group{}, err
	}

	result, err := c.identityStore.DescribeGroup(ctx, &identitystore.DescribeGroupInput{
		IdentityStoreId: aws.String(directoryID),
		GroupId:         aws.String(groupID),
	})
	if err != nil {
		if IsNotFoundError(err) {
			return types.Group{}, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
		}
		return types.Group{}, WrapAWSError(err, "DescribeGroup")
	}

	group := types.Group{ID: groupID, DisplayName: aws.ToString(result.DisplayName)}
	if group.DisplayName == "" {
		group.DisplayName = groupID
	}
	return group, nil
}

// ListGroupMembers lists the user ids that belong to a group, following pagination to exhaustion.
// Members that are not users are skipped.
func (c *IdentityCenterClient) ListGroupMembers(ctx context.Context, directoryID string, groupID string) ([]string, error) {
	members, err := CollectPages(ctx, func(ctx context.Context, nextToken *string) ([]string, *string, error) {
		if err := c.wait(ctx); err != nil {
			return nil, nil, err
		}

		result, err := c.identityStore.ListGroupMemberships(ctx, &identitystore.ListGroupMembershipsInput{
			IdentityStoreId: aws.String(directoryID),
			GroupId:         aws.String(groupID),
			MaxResults:      aws.Int32(c.pageSize),
			NextToken:       nextToken,
		})
		if err != nil {
			return nil, nil, WrapAWSError(err, "ListGroupMemberships")
		}

		page := make([]string, 0, len(result.GroupMemberships))
		for _, membership := range result.GroupMemberships {
			member, ok := membership.MemberId.(*identitystoreTypes.MemberIdMemberUserId)
			if !ok || member.Value == "" {
				c.logger.Debug("skipping non-user group member",
					"group_id", groupID,
					"membership_id", aws.ToString(membership.MembershipId))
				continue
			}
			page = append(page, member.Value)
		}
		return page, result.NextToken, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list members of group %s: %w", groupID, err)
	}

	return members, nil
}
