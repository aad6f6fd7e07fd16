package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"askhub_backend/pkg/apperr"
)

func TestErrorMatchesKind(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := apperr.Storage(cause, "load votes")

	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, apperr.ErrGateway)
	assert.Equal(t, "could not load votes", apperr.PublicMessage(err))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		kind   *apperr.Kind
		status int
	}{
		{"validation", apperr.Validation("bad direction"), apperr.ErrValidation, http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("cast vote: %w", apperr.NotFound("question")), apperr.ErrNotFound, http.StatusNotFound},
		{"bare kind", apperr.ErrNoActiveSubscription, apperr.ErrNoActiveSubscription, http.StatusConflict},
		{"gateway", apperr.Gateway(errors.New("stripe down"), "create customer"), apperr.ErrGateway, http.StatusBadGateway},
		{"unknown", errors.New("boom"), apperr.ErrInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := apperr.KindOf(tt.err)
			assert.Same(t, tt.kind, kind)
			assert.Equal(t, tt.status, kind.Status)
		})
	}

	assert.Nil(t, apperr.KindOf(nil))
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	t.Parallel()

	err := apperr.Gateway(errors.New("sk_live_secret rejected"), "create checkout session")

	assert.Equal(t, "payment provider could not create checkout session", apperr.PublicMessage(err))
	assert.Contains(t, err.Error(), "sk_live_secret")
	assert.Equal(t, "internal error", apperr.PublicMessage(errors.New("raw")))
}
