package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

func TestNewTask(t *testing.T) {
	_, err := NewTask(id.NewTaskID(), id.NewCompanyID(), " ", id.NewUserID(), time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	task, err := NewTask(id.NewTaskID(), id.NewCompanyID(), " Call back ", id.NewUserID(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Call back", task.Title)
	assert.False(t, task.Done)
}

func TestCompleteIsIdempotent(t *testing.T) {
	task, err := NewTask(id.NewTaskID(), id.NewCompanyID(), "Call", id.NewUserID(), time.Now())
	require.NoError(t, err)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	task.Complete(first)
	task.Complete(first.Add(time.Hour))

	assert.True(t, task.Done)
	assert.Equal(t, first, *task.CompletedAt)
}
