package node

type GetSealSeedErrorType = uint64

const (
	UndefinedGetSealSeedErrorType GetSealSeedErrorType = iota
	GetSealSeedFailedError
	GetSealSeedFatalError
)

type GetSealSeedError struct {
	inner error
	EType GetSealSeedErrorType
}

func NewGetSealSeedError(inner error, etype GetSealSeedErrorType) *GetSealSeedError {
	return &GetSealSeedError{inner: inner, EType: etype}
}

func (c GetSealSeedError) Error() string {
	return c.inner.Error()
}

func (c GetSealSeedError) Unwrap() error {
	return c.inner
}
