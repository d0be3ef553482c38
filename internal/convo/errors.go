package convo

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryable classifies transient persistence or transport failures.
	ErrRetryable = errors.New("retryable")
	// ErrRejected classifies authorization failures; retrying cannot succeed.
	ErrRejected = errors.New("rejected")
)

// Failure is a collaborator error tagged with its class.
type Failure struct {
	Op   string
	Kind error // ErrRetryable or ErrRejected
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %v", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// Retryable tags err as a transient failure of op.
func Retryable(op string, err error) error {
	return &Failure{Op: op, Kind: ErrRetryable, Err: err}
}

// Rejected tags err as an authorization failure of op.
func Rejected(op string, err error) error {
	return &Failure{Op: op, Kind: ErrRejected, Err: err}
}

// Classify returns err unchanged when it already carries a class and tags it
// as retryable otherwise. A nil err stays nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrRetryable) {
		return err
	}
	return Retryable(op, err)
}
