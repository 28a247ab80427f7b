package report

import (
	"context"
	"fmt"
	"log/slog"

	"identity-center-reporter/internal/types"
)

// Resolver maps user ids to directory profiles
type Resolver struct {
	client DirectoryClient
	logger *slog.Logger
}

// NewResolver creates a Resolver
func NewResolver(client DirectoryClient, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{client: client, logger: logger}
}

// ResolveAll describes every user in the order given. A failed lookup yields a degraded,
// identifier-only profile instead of an error. Cancelling ctx aborts the run.
func (r *Resolver) ResolveAll(ctx context.Context, directoryID string, userIDs []string) ([]types.UserProfile, error) {
	profiles := make([]types.UserProfile, 0, len(userIDs))
	for _, userID := range userIDs {
		profile, err := r.resolve(ctx, directoryID, userID)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (r *Resolver) resolve(ctx context.Context, directoryID string, userID string) (types.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return types.UserProfile{}, fmt.Errorf("user resolution interrupted: %w", err)
	}

	profile, err := r.client.DescribeUser(ctx, directoryID, userID)
	if err != nil {
		// a lookup cut short by cancellation is not a missing user
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.UserProfile{}, fmt.Errorf("user resolution interrupted: %w", ctxErr)
		}
		r.logger.Warn("failed to get user details",
			"user_id", userID,
			"error", err)
		return types.DegradedProfile(userID), nil
	}
	profile.UserID = userID
	return profile, nil
}

// ResolveActivity describes the users listed in an activity report and attaches each row's
// last-activity value. Rows repeating a user id are collapsed onto the first occurrence.
func (r *Resolver) ResolveActivity(ctx context.Context, directoryID string, rows []ActivityRow) ([]types.UserProfile, error) {
	seen := NewUserSet()
	profiles := make([]types.UserProfile, 0, len(rows))

	for _, row := range rows {
		if seen.Contains(row.UserID) {
			r.logger.Debug("skipping duplicate activity row", "user_id", row.UserID)
			continue
		}
		seen.Add(row.UserID)

		profile, err := r.resolve(ctx, directoryID, row.UserID)
		if err != nil {
			return nil, err
		}
		profile.LastActivity = row.LastActivity
		profiles = append(profiles, profile)
	}

	return profiles, nil
}
