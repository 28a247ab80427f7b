package aws

import (
	"context"
	"fmt"
)

// PageFetcher fetches one page for the given cursor. A nil cursor requests the first page.
type PageFetcher[T any] func(ctx context.Context, nextToken *string) (items []T, next *string, err error)

// Paginate follows the cursor returned by fetch until it is absent, visiting every item in order.
// A nil or empty token ends the listing.
func Paginate[T any](ctx context.Context, fetch PageFetcher[T], visit func(T) error) error {
	var token *string
	for page := 1; ; page++ {
		items, next, err := fetch(ctx, token)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}

		for _, item := range items {
			if err := visit(item); err != nil {
				return err
			}
		}

		if next == nil || *next == "" {
			return nil
		}
		if token != nil && *token == *next {
			return fmt.Errorf("page %d: pagination token %q did not advance", page, *next)
		}
		token = next
	}
}

// CollectPages flattens every page returned by fetch into a single slice
func CollectPages[T any](ctx context.Context, fetch PageFetcher[T]) ([]T, error) {
	var all []T
	err := Paginate(ctx, fetch, func(item T) error {
		all = append(all, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
