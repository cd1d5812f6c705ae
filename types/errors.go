package types

import (
	"fmt"

	"golang.org/x/xerrors"
)

type ErrorKind = uint64

const (
	UndefinedErrorKind ErrorKind = iota

	// ConfigurationError marks inputs that can never succeed: bad sizes,
	// unsupported shapes, unknown sectors.
	ConfigurationError

	// StoreIOError marks failures reading or writing a leaf store.
	StoreIOError

	// ProofAssemblyError marks a prover that could not assemble a proof
	// from its own state (out of range challenge, missing label).
	ProofAssemblyError
)

var ErrorKinds = map[ErrorKind]string{
	UndefinedErrorKind: "UndefinedError",
	ConfigurationError: "ConfigurationError",
	StoreIOError:       "StoreIOError",
	ProofAssemblyError: "ProofAssemblyError",
}

// ErrSectorUnavailable is reported when a challenged sector has no replica
// on hand.
var ErrSectorUnavailable = xerrors.New("sector unavailable")

type ProofError struct {
	inner error
	Kind  ErrorKind
}

func NewProofError(inner error, kind ErrorKind) *ProofError {
	return &ProofError{inner: inner, Kind: kind}
}

func NewConfigurationError(format string, args ...interface{}) *ProofError {
	return NewProofError(xerrors.Errorf(format, args...), ConfigurationError)
}

func NewStoreIOError(format string, args ...interface{}) *ProofError {
	return NewProofError(xerrors.Errorf(format, args...), StoreIOError)
}

func NewProofAssemblyError(format string, args ...interface{}) *ProofError {
	return NewProofError(xerrors.Errorf(format, args...), ProofAssemblyError)
}

func (e *ProofError) Error() string {
	return fmt.Sprintf("%s: %s", ErrorKinds[e.Kind], e.inner)
}

func (e *ProofError) Unwrap() error {
	return e.inner
}

// KindOf returns the kind of the first ProofError in err's chain.
func KindOf(err error) ErrorKind {
	var pe *ProofError
	if xerrors.As(err, &pe) {
		return pe.Kind
	}
	return UndefinedErrorKind
}
