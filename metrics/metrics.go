package metrics

var (
	SectorsSealed  = NewInt64Counter("sectors_sealed", "Number of sectors that reached the proving state")
	PhaseFailures  = NewInt64Counter("seal_phase_failures", "Number of failed sealing phases")
	PoStSessions   = NewInt64Counter("post_sessions", "Number of PoSt vanilla proof sessions")
	VerifyFailures = NewInt64Counter("verify_failures", "Number of proofs that failed verification")
	LabelingTime   = NewTimerMs("labeling_ms", "Duration of labeling every layer of a sector")
	TreeBuildTime  = NewTimerMs("tree_build_ms", "Duration of building a sector tree")
	SealProofTime  = NewTimerMs("seal_vanilla_proof_ms", "Duration of assembling vanilla seal proofs")
	PoStProofTime  = NewTimerMs("post_vanilla_proof_ms", "Duration of assembling vanilla PoSt proofs")
)
