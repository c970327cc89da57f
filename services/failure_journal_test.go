package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpilot/models"
)

type memorySink struct {
	stored  []models.ApplicationOutcome
	batches int
	err     error
}

func (m *memorySink) SaveBatch(ctx context.Context, outcomes []models.ApplicationOutcome) error {
	m.batches++
	if m.err != nil {
		return m.err
	}
	for _, o := range outcomes {
		dup := false
		for _, s := range m.stored {
			dup = dup || s.ID == o.ID
		}
		if !dup {
			m.stored = append(m.stored, o)
		}
	}
	return nil
}

func (m *memorySink) GetAll(ctx context.Context) ([]models.ApplicationOutcome, error) {
	return m.stored, nil
}

func TestFailureJournal_RecordIgnoresSuccess(t *testing.T) {
	j := NewFailureJournal(&memorySink{}, nil)
	j.Record(models.NewOutcome(models.Succeeded, "a", "u1", ""))
	j.Record(models.NewOutcome(models.FailedTimeout, "b", "u2", "slow"))

	failures := j.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, models.FailedTimeout, failures[0].Kind)
	assert.Equal(t, 1, j.Pending())
}

func TestFailureJournal_EmptyFlushSkipsSink(t *testing.T) {
	sink := &memorySink{}
	j := NewFailureJournal(sink, nil)
	require.NoError(t, j.Flush(context.Background()))
	assert.Zero(t, sink.batches)
}

func TestFailureJournal_FlushReplay(t *testing.T) {
	sink := &memorySink{err: errors.New("table not found")}
	j := NewFailureJournal(sink, nil)
	first := models.NewOutcome(models.FailedSubmission, "a", "u1", "bad")
	j.Record(first)

	err := j.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, j.Pending(), "failed flush keeps entries")

	sink.err = nil
	second := models.NewOutcome(models.FailedException, "b", "u2", "boom")
	j.Record(second)
	require.NoError(t, j.Flush(context.Background()))
	require.NoError(t, j.Flush(context.Background()))

	assert.Equal(t, 0, j.Pending())
	assert.Equal(t, 2, sink.batches, "second flush of nothing does not reach the sink")
	assert.Equal(t, []models.ApplicationOutcome{first, second}, sink.stored)
	assert.Len(t, j.Failures(), 2)
}

func TestFailureJournal_NoSink(t *testing.T) {
	j := NewFailureJournal(nil, nil)
	require.NoError(t, j.Flush(context.Background()))
	j.Record(models.NewOutcome(models.FailedTimeout, "a", "u", ""))
	assert.Error(t, j.Flush(context.Background()))
	assert.Equal(t, 1, j.Pending())
}
