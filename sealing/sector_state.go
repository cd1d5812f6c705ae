package sealing

// SectorState enumerates the states a sector goes through from staged data
// to a sealed and proven replica.
type SectorState = uint64

const (
	UndefinedSectorState SectorState = iota

	Packing      // data staged, waiting for the sealing pipeline
	PreCommit1   // labeling
	PreCommit2   // tree_c, replica encoding, tree_r_last
	WaitSeed     // waiting for the interactive challenge seed
	Committing   // vanilla proof assembly
	ComputeProof // succinct proof
	FinalizeSector
	Proving

	SealPreCommit1Failed
	SealPreCommit2Failed
	ComputeProofFailed
	FinalizeFailed

	FailedUnrecoverable
)

var SectorStates = []string{
	UndefinedSectorState: "UndefinedSectorState",
	Packing:              "Packing",
	PreCommit1:           "PreCommit1",
	PreCommit2:           "PreCommit2",
	WaitSeed:             "WaitSeed",
	Committing:           "Committing",
	ComputeProof:         "ComputeProof",
	FinalizeSector:       "FinalizeSector",
	Proving:              "Proving",

	SealPreCommit1Failed: "SealPreCommit1Failed",
	SealPreCommit2Failed: "SealPreCommit2Failed",
	ComputeProofFailed:   "ComputeProofFailed",
	FinalizeFailed:       "FinalizeFailed",

	FailedUnrecoverable: "FailedUnrecoverable",
}

func stateName(s SectorState) string {
	if s < uint64(len(SectorStates)) {
		return SectorStates[s]
	}
	return "UnknownSectorState"
}
