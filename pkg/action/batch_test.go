package action

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/device/mock"
)

func TestBatch_StopsAtInvalidSecondAction(t *testing.T) {
	f := newFixture(t, mock.Config{})

	res := f.exec.ExecuteBatchJSON(context.Background(), []byte(`[
		{"action":"tap","coordinates":[1,2]},
		{"action":"swipe","start_coordinates":[1,2]},
		{"action":"home"}
	]`))

	require.Len(t, res.Results, 2)
	assert.Equal(t, core.StatusSuccess, res.Results[0].Status)
	assert.Equal(t, core.StatusError, res.Results[1].Status)
	assert.Equal(t, core.StatusError, res.Status)
	require.NotNil(t, res.StoppedAt)
	assert.Equal(t, 1, *res.StoppedAt)

	assert.Equal(t, []string{"shell input tap 1 2"}, f.gw.Commands(), "third action must never reach the gateway")
	assert.Equal(t, 0, f.gw.Count("shell input keyevent"))
}

func TestRunActions_StopsAtNilAction(t *testing.T) {
	f := newFixture(t, mock.Config{})

	res := f.exec.RunActions(context.Background(), []Action{Home{}, nil, Back{}})

	require.Len(t, res.Results, 2)
	assert.Equal(t, core.StatusError, res.Status)
	require.NotNil(t, res.StoppedAt)
	assert.Equal(t, 1, *res.StoppedAt)
	assert.Equal(t, 1, f.gw.Count("shell input keyevent"), "back must never reach the gateway")
}

func TestBatch_AllSucceedWithPauses(t *testing.T) {
	f := newFixture(t, mock.Config{})

	res := f.exec.ExecuteBatchJSON(context.Background(), []byte(`[
		{"action":"home"},
		{"action":"tap","coordinates":[5,5]},
		{"action":"done"}
	]`))

	assert.Equal(t, core.StatusSuccess, res.Status)
	assert.Len(t, res.Results, 3)
	assert.Nil(t, res.StoppedAt)
	assert.Equal(t, []time.Duration{DefaultBatchPause, DefaultBatchPause}, f.sleeps, "pause between steps, none after the last")
}

func TestBatch_WarningDoesNotStop(t *testing.T) {
	f := newFixture(t, mock.Config{FailPull: true})

	res := f.exec.ExecuteBatchJSON(context.Background(), []byte(`[
		{"action":"screenshot","file_path":"/nonexistent/x.png"},
		{"action":"back"}
	]`))

	require.Len(t, res.Results, 2)
	assert.Equal(t, core.StatusWarning, res.Results[0].Status)
	assert.Equal(t, core.StatusSuccess, res.Status)
}

func TestBatch_DeviceErrorStops(t *testing.T) {
	f := newFixture(t, mock.Config{})
	f.gw.On("shell input text", core.CommandOutput{Stderr: "boom", ExitCode: 255})

	res := f.exec.RunActions(context.Background(), []Action{
		Home{},
		TypeText{Text: "hi"},
		Back{},
	})

	require.Len(t, res.Results, 2)
	assert.Equal(t, "Type failed: boom", res.Message)
	assert.Equal(t, 1, *res.StoppedAt)
	assert.Equal(t, 0, f.gw.Count("shell input keyevent KEYCODE_BACK"))
}

func TestBatch_NotAnArray(t *testing.T) {
	f := newFixture(t, mock.Config{})

	res := f.exec.ExecuteBatchJSON(context.Background(), []byte(`{"action":"home"}`))
	assert.Equal(t, core.StatusError, res.Status)
	assert.Equal(t, "Input must be a JSON array of actions", res.Message)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, f.gw.CallCount())
}

func TestBatch_Empty(t *testing.T) {
	f := newFixture(t, mock.Config{})

	res := f.exec.ExecuteBatchJSON(context.Background(), []byte(`[]`))
	assert.Equal(t, core.StatusSuccess, res.Status)
	assert.Empty(t, res.Results)
}

func TestBatch_CancelledBetweenSteps(t *testing.T) {
	f := newFixture(t, mock.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	f.exec.opts.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := f.exec.RunActions(ctx, []Action{Home{}, Back{}})
	assert.Equal(t, core.StatusError, res.Status)
	assert.Len(t, res.Results, 1)
	assert.Contains(t, res.Message, "Batch interrupted")
}

func TestBatchResult_JSON(t *testing.T) {
	stopped := 1
	res := &BatchResult{
		Status:    core.StatusError,
		Message:   "Tap failed: x",
		Results:   []*core.ActionResult{core.Success("home", "Pressed Home button"), core.Failure("tap", "Tap failed: x")},
		StoppedAt: &stopped,
	}

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status":"error",
		"message":"Tap failed: x",
		"results":[
			{"status":"success","action":"home","message":"Pressed Home button"},
			{"status":"error","action":"tap","message":"Tap failed: x"}
		],
		"stopped_at":1
	}`, string(out))
}
