package worker

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppetrenko/civicplan/internal/model"
)

type fakeFormer struct {
	failIssue int
}

func (f *fakeFormer) Form(_ context.Context, item model.IssueWithSignal) (*model.ProjectCandidate, error) {
	if item.Issue.ID == f.failIssue {
		return nil, fmt.Errorf("issue %d: no crew available", item.Issue.ID)
	}
	return &model.ProjectCandidate{
		ID:            item.Issue.ID,
		IssueID:       item.Issue.ID,
		Title:         item.Issue.Title,
		EstimatedCost: item.Signal.EstimatedCost,
	}, nil
}

func issueBatch(n int) []model.IssueWithSignal {
	items := make([]model.IssueWithSignal, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, model.IssueWithSignal{
			Issue:  model.Issue{ID: i, Title: fmt.Sprintf("Issue %d", i), Category: "Water", Status: "OPEN"},
			Signal: model.IssueSignal{IssueID: i, EstimatedCost: float64(i) * 100_000, UrgencyDays: 30},
		})
	}
	return items
}

func TestBatchScorer_ScoresEveryIssue(t *testing.T) {
	scorer := NewBatchScorer(&fakeFormer{}, 3)

	results := scorer.ScoreIssues(context.Background(), issueBatch(8))
	require.Len(t, results, 8)

	sort.Slice(results, func(i, j int) bool { return results[i].IssueID < results[j].IssueID })
	for i, res := range results {
		require.NoError(t, res.GetError())
		require.NotNil(t, res.Candidate)
		assert.Equal(t, i+1, res.Candidate.IssueID)
	}
}

func TestBatchScorer_FailedIssueDoesNotStopTheBatch(t *testing.T) {
	scorer := NewBatchScorer(&fakeFormer{failIssue: 3}, 2)

	results := scorer.ScoreIssues(context.Background(), issueBatch(5))
	require.Len(t, results, 5)

	failures := 0
	for _, res := range results {
		if res.GetError() != nil {
			failures++
			assert.Nil(t, res.Candidate)
			assert.Equal(t, 3, res.IssueID)
		}
	}
	assert.Equal(t, 1, failures)
}

// A batch much larger than the worker count must not wedge the pool: the
// submit loop runs before any result is drained, so the buffers have to
// absorb the whole batch.
func TestBatchScorer_BatchLargerThanWorkerBuffers(t *testing.T) {
	scorer := NewBatchScorer(&fakeFormer{}, 4)

	done := make(chan []*ScoreResult, 1)
	go func() { done <- scorer.ScoreIssues(context.Background(), issueBatch(30)) }()

	select {
	case results := <-done:
		require.Len(t, results, 30)
		seen := map[int]bool{}
		for _, res := range results {
			require.NoError(t, res.GetError())
			seen[res.IssueID] = true
		}
		assert.Len(t, seen, 30)
	case <-time.After(5 * time.Second):
		t.Fatal("ScoreIssues stalled: Submit blocked with workers waiting on the results channel")
	}
}

func TestBatchScorer_EmptyInput(t *testing.T) {
	scorer := NewBatchScorer(&fakeFormer{}, 4)
	assert.Empty(t, scorer.ScoreIssues(context.Background(), nil))
}
