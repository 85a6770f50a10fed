package campaign

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("campaign: invalid request")
	ErrDial           = errors.New("campaign: dial failed")
	ErrStatusQuery    = errors.New("campaign: status query failed")
	ErrSMS            = errors.New("campaign: sms failed")
	ErrPersist        = errors.New("campaign: persist failed")
	ErrVIPGrant       = errors.New("campaign: vip grant failed")
	ErrClaim          = errors.New("campaign: claim failed")
	ErrCancelled      = errors.New("campaign: cancelled")
)

// Pipeline stage names, also used as metric labels.
const (
	StageClaim   = "claim"
	StageDial    = "dial"
	StageStatus  = "status"
	StageSMS     = "sms"
	StagePersist = "persist"
	StageVIP     = "vip"
)

// StageError records which stage of which lead failed.
// Err is the stage sentinel wrapped around the cause.
type StageError struct {
	Stage  string
	LeadID int64
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("lead %d: %s: %v", e.LeadID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage string, leadID int64, sentinel, cause error) *StageError {
	if cause == nil {
		return &StageError{Stage: stage, LeadID: leadID, Err: sentinel}
	}
	return &StageError{Stage: stage, LeadID: leadID, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
