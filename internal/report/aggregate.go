package report

import (
	"context"
	"fmt"
	"log/slog"

	"identity-center-reporter/internal/types"
)

// DirectoryClient is the directory capability the aggregator and resolver need
type DirectoryClient interface {
	ListApplicationAssignments(ctx context.Context, applicationARN string) ([]types.Assignment, error)
	ListGroupMembers(ctx context.Context, directoryID string, groupID string) ([]string, error)
	DescribeGroup(ctx context.Context, directoryID string, groupID string) (types.Group, error)
	DescribeUser(ctx context.Context, directoryID string, userID string) (types.UserProfile, error)
}

// Aggregator turns an application's assignments into the set of users that can reach it
type Aggregator struct {
	client DirectoryClient
	logger *slog.Logger
}

// NewAggregator creates an Aggregator
func NewAggregator(client DirectoryClient, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{client: client, logger: logger}
}

// partition splits assignments into direct user ids and group ids, both deduplicated
func partition(assignments []types.Assignment) (users *UserSet, groups *UserSet) {
	users, groups = NewUserSet(), NewUserSet()
	for _, assignment := range assignments {
		switch assignment.Principal.Type {
		case types.PrincipalTypeUser:
			users.Add(assignment.Principal.ID)
		case types.PrincipalTypeGroup:
			groups.Add(assignment.Principal.ID)
		}
	}
	return users, groups
}

// Aggregate returns every user assigned to the application directly or through a group.
// A group whose membership cannot be listed is logged and skipped. Cancelling ctx aborts the run.
func (a *Aggregator) Aggregate(ctx context.Context, directoryID string, applicationARN string) (*UserSet, error) {
	assignments, err := a.client.ListApplicationAssignments(ctx, applicationARN)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate application users: %w", err)
	}

	users, groups := partition(assignments)
	a.logger.Info("collected application assignments",
		"application_arn", applicationARN,
		"assignments", len(assignments),
		"direct_users", users.Len(),
		"groups", groups.Len())

	for _, groupID := range groups.IDs() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("application user aggregation interrupted: %w", err)
		}
		members, err := a.client.ListGroupMembers(ctx, directoryID, groupID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("application user aggregation interrupted: %w", ctxErr)
			}
			a.logger.Warn("failed to resolve group membership, skipping group",
				"group_id", groupID,
				"error", err)
			continue
		}
		users.Add(members...)
	}

	a.logger.Info("aggregated application users",
		"application_arn", applicationARN,
		"users", users.Len())

	return users, nil
}

// GroupSummary describes every group assigned to the application with its resolved members.
// Direct user assignments are not part of the summary.
func (a *Aggregator) GroupSummary(ctx context.Context, directoryID string, applicationARN string, resolver *Resolver) (types.GroupSummary, error) {
	summary := types.GroupSummary{ApplicationARN: applicationARN}

	assignments, err := a.client.ListApplicationAssignments(ctx, applicationARN)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize application groups: %w", err)
	}

	_, groups := partition(assignments)
	unique := NewUserSet()

	for _, groupID := range groups.IDs() {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("group summary interrupted: %w", err)
		}
		group, err := a.client.DescribeGroup(ctx, directoryID, groupID)
		if err != nil {
			a.logger.Warn("failed to describe group, using id as name",
				"group_id", groupID,
				"error", err)
			group = types.Group{ID: groupID, DisplayName: groupID}
		}

		members, err := a.client.ListGroupMembers(ctx, directoryID, groupID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, fmt.Errorf("group summary interrupted: %w", ctxErr)
			}
			a.logger.Warn("failed to resolve group membership",
				"group_id", groupID,
				"error", err)
		}

		// memberships can repeat across pages
		memberSet := NewUserSet(members...)
		group.Members, err = resolver.ResolveAll(ctx, directoryID, memberSet.IDs())
		if err != nil {
			return summary, err
		}
		unique.Add(memberSet.IDs()...)

		summary.Groups = append(summary.Groups, group)
		summary.TotalUsers += len(group.Members)
	}

	summary.UniqueUsers = unique.Len()
	return summary, nil
}
