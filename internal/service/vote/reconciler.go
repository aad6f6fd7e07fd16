package vote

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"askhub_backend/internal/model"
	"askhub_backend/internal/repository"
	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/metrics"
)

// Store persists votes. UpdateValue and Delete report a row that vanished
// with repository.ErrVersionMismatch.
type Store interface {
	// FindByVoterLocked serializes callers on (userID, t) for the rest of the
	// transaction and returns the user's vote, or nil.
	FindByVoterLocked(ctx context.Context, userID uint, t model.VoteTarget) (*model.Vote, error)
	Create(ctx context.Context, v *model.Vote) error
	UpdateValue(ctx context.Context, v *model.Vote) error
	Delete(ctx context.Context, id uint) error
	Tally(ctx context.Context, t model.VoteTarget) (model.VoteTally, error)
}

type QuestionLookup interface {
	FindByID(ctx context.Context, id uint) (*model.Question, error)
}

type AnswerLookup interface {
	FindByID(ctx context.Context, id uint) (*model.Answer, error)
}

// Transactor runs fn atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outcome describes what a reconciliation did to the stored vote.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeFlipped   Outcome = "flipped"
	OutcomeRetracted Outcome = "retracted"
)

const (
	conflictRetries = 3
	conflictBackoff = 10 * time.Millisecond
)

type Reconciler struct {
	votes     Store
	questions QuestionLookup
	answers   AnswerLookup
	tx        Transactor
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

func NewReconciler(votes Store, questions QuestionLookup, answers AnswerLookup, tx Transactor, m *metrics.Metrics, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		votes:     votes,
		questions: questions,
		answers:   answers,
		tx:        tx,
		metrics:   m,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// CastVote applies one vote click by voterID on target.
//
// With no prior vote a new one is created. Repeating the stored direction
// retracts the vote and returns nil. The opposite direction flips the stored
// vote in place. Each call performs exactly one write. Requests for the same
// (voter, target) pair are serialized by the store's lock. A write that still
// loses a race (unique index hit, row already gone) reruns the whole
// reconciliation against the current row.
func (r *Reconciler) CastVote(ctx context.Context, voterID uint, target model.VoteTarget, dir model.Direction) (*model.Vote, error) {
	if voterID == 0 {
		return nil, apperr.Validation("voter is required")
	}
	if err := target.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if !dir.Valid() {
		return nil, apperr.Validation("direction must be 1 or -1")
	}

	var (
		result  *model.Vote
		outcome Outcome
	)

	backoff := retry.WithMaxRetries(conflictRetries, retry.NewConstant(conflictBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			result, outcome, err = r.reconcile(ctx, voterID, target, dir)
			return err
		})
		if isConflict(err) {
			r.log.Debug().Err(err).Uint("user_id", voterID).Stringer("target", target).Msg("vote changed concurrently, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if isConflict(err) {
			return nil, apperr.Wrap(apperr.ErrConflict, err, "vote could not be recorded, try again")
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		r.log.Error().Err(err).Uint("user_id", voterID).Stringer("target", target).Msg("vote reconciliation failed")
		return nil, apperr.Storage(err, "record vote")
	}

	r.metrics.VotesCast.WithLabelValues(string(target.Kind), string(outcome)).Inc()
	return result, nil
}

// isConflict reports a write that lost a race with another request for the
// same vote.
func isConflict(err error) bool {
	return errors.Is(err, repository.ErrDuplicate) || errors.Is(err, repository.ErrVersionMismatch)
}

func (r *Reconciler) reconcile(ctx context.Context, voterID uint, target model.VoteTarget, dir model.Direction) (*model.Vote, Outcome, error) {
	if err := r.ensureTarget(ctx, target); err != nil {
		return nil, "", err
	}

	existing, err := r.votes.FindByVoterLocked(ctx, voterID, target)
	if err != nil {
		return nil, "", err
	}

	switch {
	case existing == nil:
		v := model.NewVote(voterID, target, dir)
		if err := r.votes.Create(ctx, v); err != nil {
			return nil, "", err
		}
		return v, OutcomeCreated, nil

	case existing.Direction() == dir:
		if err := r.votes.Delete(ctx, existing.ID); err != nil {
			return nil, "", err
		}
		return nil, OutcomeRetracted, nil

	default:
		existing.Value = int(dir)
		existing.UpdatedAt = r.now()
		if err := r.votes.UpdateValue(ctx, existing); err != nil {
			return nil, "", err
		}
		return existing, OutcomeFlipped, nil
	}
}

func (r *Reconciler) ensureTarget(ctx context.Context, target model.VoteTarget) error {
	var found bool
	switch target.Kind {
	case model.TargetQuestion:
		q, err := r.questions.FindByID(ctx, target.ID)
		if err != nil {
			return err
		}
		found = q != nil
	case model.TargetAnswer:
		a, err := r.answers.FindByID(ctx, target.ID)
		if err != nil {
			return err
		}
		found = a != nil
	}
	if !found {
		return apperr.NotFound(string(target.Kind))
	}
	return nil
}

// Tally returns the vote counts on target.
func (r *Reconciler) Tally(ctx context.Context, target model.VoteTarget) (model.VoteTally, error) {
	if err := target.Validate(); err != nil {
		return model.VoteTally{}, apperr.Validation("%s", err.Error())
	}
	tally, err := r.votes.Tally(ctx, target)
	if err != nil {
		return model.VoteTally{}, apperr.Storage(err, "count votes")
	}
	return tally, nil
}
