package usecase

import (
	"context"
	"errors"

	"ModelGate/internal/domain/models"
	"ModelGate/internal/services/shadow"
	pkgqueue "ModelGate/pkg/queue"
)

// OutcomeRetryJob replays parked settlements from the retry queue. A
// settlement that still has no matching shadow trade errors out so the queue
// backs off and retries again, up to its retry limit.
type OutcomeRetryJob struct {
	runner *ShadowRunner
}

func NewOutcomeRetryJob(runner *ShadowRunner) *OutcomeRetryJob {
	return &OutcomeRetryJob{runner: runner}
}

func (j *OutcomeRetryJob) Name() string { return "outcome-retry" }

func (j *OutcomeRetryJob) Type() string { return outcomeRetryType }

func (j *OutcomeRetryJob) Handle(ctx context.Context, payload interface{}) error {
	ev, err := pkgqueue.ParsePayload[models.OutcomeEvent](payload)
	if err != nil {
		return err
	}

	err = j.runner.ApplyOutcome(ctx, ev)
	if errors.Is(err, shadow.ErrNotRunning) || errors.Is(err, ErrUnknownStrategy) {
		// run finished while the settlement was parked; drop it
		return nil
	}
	return err
}

var _ pkgqueue.Job = (*OutcomeRetryJob)(nil)
