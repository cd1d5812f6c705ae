package types

import (
	"encoding/hex"

	commcid "github.com/filecoin-project/go-fil-commcid"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
)

type SectorID = abi.SectorNumber

// Commitment is the root of a sector tree (comm_d, comm_r, comm_c, comm_r_last).
type Commitment hasher.Domain

type Ticket [32]byte

type ChallengeSeed [32]byte

type ProverID [32]byte

func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

func (c Commitment) Domain() hasher.Domain {
	return hasher.Domain(c)
}

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// DataCID renders c as an unsealed sector CID.
func (c Commitment) DataCID() (cid.Cid, error) {
	return commcid.DataCommitmentV1ToCID(c[:])
}

// ReplicaCID renders c as a sealed sector CID.
func (c Commitment) ReplicaCID() (cid.Cid, error) {
	return commcid.ReplicaCommitmentV1ToCID(c[:])
}

// CommitmentFromCID parses an unsealed or sealed sector CID.
func CommitmentFromCID(c cid.Cid) (Commitment, error) {
	var out Commitment
	raw, err := commcid.CIDToDataCommitmentV1(c)
	if err != nil {
		raw, err = commcid.CIDToReplicaCommitmentV1(c)
		if err != nil {
			return out, NewConfigurationError("not a sector commitment cid %s: %w", c, err)
		}
	}
	copy(out[:], raw)
	return out, nil
}

// PublicSector is what a PoSt verifier knows about a challenged sector.
type PublicSector struct {
	ID    SectorID
	CommR Commitment
}
