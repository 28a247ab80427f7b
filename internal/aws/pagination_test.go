package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagesFetcher(pages map[string][]int, next map[string]*string, calls *int) PageFetcher[int] {
	return func(ctx context.Context, token *string) ([]int, *string, error) {
		*calls++
		key := aws.ToString(token)
		return pages[key], next[key], nil
	}
}

func TestCollectPages(t *testing.T) {
	tests := []struct {
		name      string
		pages     map[string][]int
		next      map[string]*string
		want      []int
		wantCalls int
	}{
		{
			name:      "single page",
			pages:     map[string][]int{"": {1, 2}},
			next:      map[string]*string{},
			want:      []int{1, 2},
			wantCalls: 1,
		},
		{
			name:      "three pages",
			pages:     map[string][]int{"": {1}, "a": {2}, "b": {3, 4}},
			next:      map[string]*string{"": aws.String("a"), "a": aws.String("b")},
			want:      []int{1, 2, 3, 4},
			wantCalls: 3,
		},
		{
			name:      "empty token ends listing",
			pages:     map[string][]int{"": {1}},
			next:      map[string]*string{"": aws.String("")},
			want:      []int{1},
			wantCalls: 1,
		},
		{
			name:      "empty first page",
			pages:     map[string][]int{},
			next:      map[string]*string{},
			want:      nil,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := CollectPages(context.Background(), pagesFetcher(tt.pages, tt.next, &calls))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestPaginate_StuckToken(t *testing.T) {
	fetch := func(ctx context.Context, token *string) ([]int, *string, error) {
		return []int{1}, aws.String("same"), nil
	}

	_, err := CollectPages(context.Background(), fetch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not advance")
}

func TestPaginate_FetchError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(ctx context.Context, token *string) ([]int, *string, error) {
		if token == nil {
			return []int{1}, aws.String("next"), nil
		}
		return nil, nil, boom
	}

	_, err := CollectPages(context.Background(), fetch)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "page 2")
}

func TestPaginate_VisitError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	fetch := pagesFetcher(map[string][]int{"": {1, 2, 3}}, map[string]*string{}, &calls)

	var seen []int
	err := Paginate(context.Background(), fetch, func(item int) error {
		seen = append(seen, item)
		if item == 2 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []int{1, 2}, seen)
}
