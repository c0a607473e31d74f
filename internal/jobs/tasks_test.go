package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/ccdash/internal/refresh"
	"github.com/briangreenhill/ccdash/internal/retry"
)

type stubRefresher struct {
	report refresh.Report
	forced bool
	names  []string
}

func (s *stubRefresher) EnsureFresh(_ context.Context, names ...string) refresh.Report {
	s.names = names
	return s.report
}

func (s *stubRefresher) ForceRefresh(_ context.Context, names ...string) refresh.Report {
	s.forced = true
	s.names = names
	return s.report
}

func TestNewRefreshTask(t *testing.T) {
	task, err := NewRefreshTask(RefreshPayload{Resources: []string{"users"}, Force: true})
	require.NoError(t, err)
	assert.Equal(t, TaskRefreshCache, task.Type())

	var p RefreshPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, []string{"users"}, p.Resources)
	assert.True(t, p.Force)
}

func TestProcessTask(t *testing.T) {
	transient := &retry.StatusError{Method: http.MethodGet, URL: "/api/v2/users", StatusCode: http.StatusServiceUnavailable}
	permanent := &retry.StatusError{Method: http.MethodGet, URL: "/api/v2/users", StatusCode: http.StatusForbidden}

	tests := []struct {
		name      string
		payload   RefreshPayload
		report    refresh.Report
		wantErr   bool
		wantForce bool
	}{
		{
			name:    "success",
			payload: RefreshPayload{Resources: []string{"users"}},
			report:  refresh.Report{Outcomes: []refresh.Outcome{{Resource: "users", Refreshed: true}}},
		},
		{
			name:      "forced",
			payload:   RefreshPayload{Force: true},
			report:    refresh.Report{Forced: true},
			wantForce: true,
		},
		{
			name:    "transient failure is retried",
			payload: RefreshPayload{},
			report:  refresh.Report{Outcomes: []refresh.Outcome{{Resource: "users", Err: transient}}},
			wantErr: true,
		},
		{
			name:    "permanent failure is dropped",
			payload: RefreshPayload{},
			report:  refresh.Report{Outcomes: []refresh.Outcome{{Resource: "users", Err: permanent}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf := &stubRefresher{report: tt.report}
			task, err := NewRefreshTask(tt.payload)
			require.NoError(t, err)

			err = NewHandler(rf).ProcessTask(context.Background(), task)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantForce, rf.forced)
			assert.Equal(t, tt.payload.Resources, rf.names)
		})
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	err := NewHandler(&stubRefresher{}).ProcessTask(context.Background(), asynq.NewTask(TaskRefreshCache, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(refresh.Report{}))
	assert.False(t, Retryable(refresh.Report{Outcomes: []refresh.Outcome{{Err: errors.New("boom")}}}))
	assert.True(t, Retryable(refresh.Report{Outcomes: []refresh.Outcome{
		{Err: errors.New("boom")},
		{Err: &retry.StatusError{StatusCode: http.StatusTooManyRequests}},
	}}))
}

func TestAsynqLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewAsynqLogger(zerolog.New(&buf))
	var _ asynq.Logger = l

	l.Info("scheduler ", "started")
	assert.Contains(t, buf.String(), `"component":"asynq"`)
	assert.Contains(t, buf.String(), "scheduler started")
}
