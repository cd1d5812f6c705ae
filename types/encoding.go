package types

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// ProofVersion is written into every serialized phase output.
const ProofVersion = 1

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// Marshal encodes v in canonical CBOR.
func Marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("cbor marshal %T: %w", v, err)
	}
	return b, nil
}

func Unmarshal(b []byte, v interface{}) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return xerrors.Errorf("cbor unmarshal %T: %w", v, err)
	}
	return nil
}

// Encode writes v to w in canonical CBOR.
func Encode(w io.Writer, v interface{}) error {
	if err := encMode.NewEncoder(w).Encode(v); err != nil {
		return xerrors.Errorf("cbor encode %T: %w", v, err)
	}
	return nil
}

// Decode reads a single CBOR item from r into v.
func Decode(r io.Reader, v interface{}) error {
	if err := cbor.NewDecoder(r).Decode(v); err != nil {
		return xerrors.Errorf("cbor decode %T: %w", v, err)
	}
	return nil
}
