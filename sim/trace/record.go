// Package trace provides decision-trace recording for treatment-course analysis.
// This package has no dependencies on sim/ or its subpackages; it stores pure data types.
package trace

// DiscontinuationRecord captures one patient leaving active treatment.
type DiscontinuationRecord struct {
	PatientID     string
	Day           int // days since simulation start
	Category      string
	Reason        string
	Vision        float64 // underlying vision after any penalty
	IntervalWeeks float64
	VisionPenalty float64
}

// RetreatmentRecord captures a discontinued patient resuming treatment.
type RetreatmentRecord struct {
	PatientID  string
	Day        int
	Category   string // discontinuation category being reversed
	Reason     string
	VisionLoss float64 // letters lost since discontinuation
}

// CatastrophicRecord captures a sudden large vision loss.
type CatastrophicRecord struct {
	PatientID       string
	Day             int
	TrajectoryClass string
	Loss            float64
}
