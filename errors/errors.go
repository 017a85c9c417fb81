package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrAlreadyActive       = fmt.Errorf("participant is already in an active session")
	ErrAlreadySearching    = fmt.Errorf("participant is already searching")
	ErrNotInSession        = fmt.Errorf("participant is not in an active session")
	ErrPartnerUnreachable  = fmt.Errorf("chat partner is unreachable")
	ErrAlreadyExists       = fmt.Errorf("participant already exists")
	ErrStorageUnavailable  = fmt.Errorf("storage unavailable")
	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrParticipantInactive = fmt.Errorf("participant is inactive")
	ErrSessionNotFound     = fmt.Errorf("session not found")
	ErrStateConflict       = fmt.Errorf("participant state changed concurrently")
	ErrClaimConflict       = fmt.Errorf("pairing claim lost to a concurrent attempt")
	ErrEmptyContent        = fmt.Errorf("message content is empty")
	ErrContentTooLong      = fmt.Errorf("message content is too long")
)

// IsNoOp reports whether err is a user-visible no-op that callers must not surface as a failure.
// ErrNotInSession is not one: sending without a partner is a real rejection.
func IsNoOp(err error) bool {
	return stderrors.Is(err, ErrAlreadySearching)
}

// IsInformational reports whether err was already recovered by the core and only describes what happened.
func IsInformational(err error) bool {
	return stderrors.Is(err, ErrPartnerUnreachable)
}

// Is forwards to the standard library so callers only need this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

var domainErrors = []error{
	ErrParticipantNotFound, ErrAlreadyExists, ErrStateConflict, ErrClaimConflict,
	ErrSessionNotFound, ErrNotInSession, ErrStorageUnavailable,
	context.Canceled, context.DeadlineExceeded,
}

// Storage leaves domain sentinels untouched and tags any other driver error as ErrStorageUnavailable.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range domainErrors {
		if stderrors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
