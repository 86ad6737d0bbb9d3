package task

import (
	"errors"
	"testing"

	"fitcoach-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestJSONTaskRoundTrip(t *testing.T) {
	task, err := NewJSONTask(taskname.DeliveryPlan, taskname.DeliveryPlanPayload{TenantID: "t1", AssignmentID: "a1", Retry: true})
	require.NoError(t, err)
	require.Equal(t, taskname.DeliveryPlan, task.Type())

	var payload taskname.DeliveryPlanPayload
	require.NoError(t, DecodePayload(task, &payload))
	require.Equal(t, "a1", payload.AssignmentID)
	require.True(t, payload.Retry)
}

func TestDecodePayloadSkipsRetry(t *testing.T) {
	task := asynq.NewTask(taskname.DeliveryPlan, []byte("{not json"))

	var payload taskname.DeliveryPlanPayload
	err := DecodePayload(task, &payload)
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
