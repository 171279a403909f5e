package service

import (
	"errors"
	"fmt"
)

// Stage names the point at which provisioning stopped. Values are part of the HTTP contract.
type Stage string

const (
	StageValidation           Stage = "ValidationError"
	StageAlreadyExists        Stage = "AlreadyExists"
	StageIdentityCreation     Stage = "IdentityCreationFailed"
	StageInvitationCreation   Stage = "InvitationCreationFailed"
	StageInvitationAcceptance Stage = "InvitationAcceptanceFailed"
)

// Sentinel errors for the provisioning service; a *Failure matches its stage sentinel with errors.Is.
// Adapters return ErrAlreadyExists for uniqueness collisions.
var (
	ErrValidation                 = errors.New("invalid provisioning request")
	ErrAlreadyExists              = errors.New("already exists")
	ErrIdentityCreationFailed     = errors.New("identity creation failed")
	ErrInvitationCreationFailed   = errors.New("invitation creation failed")
	ErrInvitationAcceptanceFailed = errors.New("invitation acceptance failed")
	// ErrCompensationFailed is attached to a Failure whose rollback left records behind.
	ErrCompensationFailed = errors.New("compensation failed")
)

func (s Stage) sentinel() error {
	switch s {
	case StageValidation:
		return ErrValidation
	case StageAlreadyExists:
		return ErrAlreadyExists
	case StageIdentityCreation:
		return ErrIdentityCreationFailed
	case StageInvitationCreation:
		return ErrInvitationCreationFailed
	default:
		return ErrInvitationAcceptanceFailed
	}
}

// Failure is the error returned by Provision. Message is safe to show to callers; Err and
// CompensationErr carry the underlying store errors and must only be logged.
type Failure struct {
	Stage       Stage
	Message     string
	Compensated bool
	// Orphans lists records that compensation could not remove, as "kind:id".
	Orphans         []string
	Err             error
	CompensationErr error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("provisioning %s: %s", f.Stage, f.Message)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	if f.CompensationErr != nil {
		msg += "; compensation failed: " + f.CompensationErr.Error()
	}
	return msg
}

// Unwrap exposes the stage sentinel, the cause and, when rollback failed, ErrCompensationFailed.
func (f *Failure) Unwrap() []error {
	errs := []error{f.Stage.sentinel()}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	if f.CompensationErr != nil {
		errs = append(errs, ErrCompensationFailed, f.CompensationErr)
	}
	return errs
}

// AsFailure returns the *Failure in err's chain, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
