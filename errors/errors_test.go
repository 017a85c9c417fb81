package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage_Tags_Driver_Errors(t *testing.T) {
	req := require.New(t)
	driverErr := stderrors.New("connection reset by peer")

	err := Storage(driverErr)

	req.ErrorIs(err, ErrStorageUnavailable)
	req.ErrorIs(err, driverErr)
}

func TestStorage_Keeps_Domain_Errors(t *testing.T) {
	req := require.New(t)
	req.NoError(Storage(nil))

	for _, sentinel := range []error{ErrParticipantNotFound, ErrClaimConflict, ErrSessionNotFound, context.Canceled} {
		wrapped := fmt.Errorf("claim: %w", sentinel)
		req.Equal(wrapped, Storage(wrapped))
		req.NotErrorIs(Storage(wrapped), ErrStorageUnavailable)
	}
}

func TestClassification(t *testing.T) {
	req := require.New(t)

	req.True(IsNoOp(ErrAlreadySearching))
	req.True(IsNoOp(fmt.Errorf("search: %w", ErrAlreadySearching)))
	req.False(IsNoOp(fmt.Errorf("deliver: %w", ErrNotInSession)))
	req.False(IsNoOp(ErrAlreadyActive))

	req.True(IsInformational(ErrPartnerUnreachable))
	req.False(IsInformational(ErrStorageUnavailable))
}
