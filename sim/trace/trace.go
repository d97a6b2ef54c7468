package trace

import "sort"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures discontinuation, retreatment and catastrophic-event decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a simulation run.
type SimulationTrace struct {
	Config           TraceConfig
	Discontinuations []DiscontinuationRecord
	Retreatments     []RetreatmentRecord
	Catastrophic     []CatastrophicRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:           config,
		Discontinuations: make([]DiscontinuationRecord, 0),
		Retreatments:     make([]RetreatmentRecord, 0),
		Catastrophic:     make([]CatastrophicRecord, 0),
	}
}

// Enabled reports whether records should be collected. Safe on nil.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDecisions
}

// RecordDiscontinuation appends a discontinuation record.
func (st *SimulationTrace) RecordDiscontinuation(record DiscontinuationRecord) {
	st.Discontinuations = append(st.Discontinuations, record)
}

// RecordRetreatment appends a retreatment record.
func (st *SimulationTrace) RecordRetreatment(record RetreatmentRecord) {
	st.Retreatments = append(st.Retreatments, record)
}

// RecordCatastrophic appends a catastrophic-event record.
func (st *SimulationTrace) RecordCatastrophic(record CatastrophicRecord) {
	st.Catastrophic = append(st.Catastrophic, record)
}

// DecisionKind tags an entry of a patient timeline.
type DecisionKind string

const (
	KindDiscontinuation DecisionKind = "discontinuation"
	KindRetreatment     DecisionKind = "retreatment"
	KindCatastrophic    DecisionKind = "catastrophic"
)

// Decision is one traced event in a patient's course.
type Decision struct {
	Day    int
	Kind   DecisionKind
	Detail string // category for discontinuation and retreatment, trajectory class for catastrophic events
}

// ForPatient merges the patient's records into day order. Same-day
// decisions keep their recording order within each kind, with
// catastrophic events first, then retreatments, then discontinuations.
func (st *SimulationTrace) ForPatient(id string) []Decision {
	if st == nil {
		return nil
	}
	var out []Decision
	for _, c := range st.Catastrophic {
		if c.PatientID == id {
			out = append(out, Decision{Day: c.Day, Kind: KindCatastrophic, Detail: c.TrajectoryClass})
		}
	}
	for _, r := range st.Retreatments {
		if r.PatientID == id {
			out = append(out, Decision{Day: r.Day, Kind: KindRetreatment, Detail: r.Category})
		}
	}
	for _, d := range st.Discontinuations {
		if d.PatientID == id {
			out = append(out, Decision{Day: d.Day, Kind: KindDiscontinuation, Detail: d.Category})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
