package action

import (
	"context"
	"encoding/json"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

// BatchResult is the outcome of a batch run.
type BatchResult struct {
	Status    core.Status          `json:"status"`
	Message   string               `json:"message,omitempty"`
	Results   []*core.ActionResult `json:"results"`
	StoppedAt *int                 `json:"stopped_at,omitempty"` // index of the failing step
}

// ExecuteBatchJSON runs a JSON array of descriptors.
func (e *Executor) ExecuteBatchJSON(ctx context.Context, data []byte) *BatchResult {
	items, err := DecodeBatch(data)
	if err != nil {
		res := core.FailureFromError("", err)
		return &BatchResult{Status: core.StatusError, Message: res.Message, Results: []*core.ActionResult{}}
	}
	return e.RunBatch(ctx, items)
}

// RunBatch executes descriptors in order, decoding each one only when its
// turn comes. It stops after the first error result; every result produced
// up to and including that one is returned. Successful steps are separated
// by a short pause.
func (e *Executor) RunBatch(ctx context.Context, items []json.RawMessage) *BatchResult {
	return e.runSteps(ctx, len(items), func(i int) *core.ActionResult {
		return e.ExecuteJSON(ctx, items[i])
	})
}

// RunActions is RunBatch for already-decoded actions.
func (e *Executor) RunActions(ctx context.Context, actions []Action) *BatchResult {
	return e.runSteps(ctx, len(actions), func(i int) *core.ActionResult {
		return e.Execute(ctx, actions[i])
	})
}

func (e *Executor) runSteps(ctx context.Context, n int, step func(i int) *core.ActionResult) *BatchResult {
	batch := &BatchResult{Status: core.StatusSuccess, Results: make([]*core.ActionResult, 0, n)}

	for i := 0; i < n; i++ {
		res := step(i)
		batch.Results = append(batch.Results, res)

		if res.Status.IsError() {
			batch.stop(i, res.Message)
			return batch
		}
		if i == n-1 {
			break
		}
		if err := e.opts.Sleep(ctx, e.opts.BatchPause); err != nil {
			batch.stop(i, "Batch interrupted: "+err.Error())
			return batch
		}
	}
	return batch
}

func (b *BatchResult) stop(index int, msg string) {
	b.Status = core.StatusError
	b.Message = msg
	b.StoppedAt = &index
}
