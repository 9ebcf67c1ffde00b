package worker

import (
	"context"

	"github.com/ppetrenko/civicplan/internal/model"
)

// Former turns a raw issue into a scored project candidate
type Former interface {
	Form(ctx context.Context, item model.IssueWithSignal) (*model.ProjectCandidate, error)
}

// ScoreJob scores one issue on the pool
type ScoreJob struct {
	Item   model.IssueWithSignal
	Former Former
}

// Execute runs formation and scoring for the job's issue
func (j *ScoreJob) Execute(ctx context.Context) Result {
	candidate, err := j.Former.Form(ctx, j.Item)
	return &ScoreResult{
		IssueID:   j.Item.Issue.ID,
		Candidate: candidate,
		Error:     err,
	}
}

// ScoreResult is the outcome of scoring one issue
type ScoreResult struct {
	IssueID   int
	Candidate *model.ProjectCandidate
	Error     error
}

// GetError returns the scoring error, if any
func (r *ScoreResult) GetError() error {
	return r.Error
}

// BatchScorer scores many issues concurrently
type BatchScorer struct {
	former      Former
	concurrency int
}

// NewBatchScorer creates a batch scorer with the given concurrency
func NewBatchScorer(former Former, concurrency int) *BatchScorer {
	return &BatchScorer{
		former:      former,
		concurrency: concurrency,
	}
}

// ScoreIssues scores all issues on a worker pool. Results come back in
// completion order; the caller re-sorts by issue ID.
func (b *BatchScorer) ScoreIssues(ctx context.Context, items []model.IssueWithSignal) []*ScoreResult {
	if len(items) == 0 {
		return []*ScoreResult{}
	}

	// The whole batch is submitted before any result is drained, so the
	// buffers must hold every job and every result.
	pool := NewBufferedPool(b.concurrency, len(items))
	pool.Start()

	for _, item := range items {
		pool.Submit(&ScoreJob{Item: item, Former: b.former})
	}

	results := pool.Wait()

	scoreResults := make([]*ScoreResult, len(results))
	for i, result := range results {
		scoreResults[i] = result.(*ScoreResult)
	}

	return scoreResults
}
