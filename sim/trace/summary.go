package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDiscontinuations  int
	TotalRetreatments      int
	UniquePatients         int            // patients with at least one discontinuation
	ByCategory             map[string]int // discontinuation category → count
	RetreatmentsByCategory map[string]int
	CatastrophicEvents     int
	MeanCatastrophicLoss   float64
	MaxCatastrophicLoss    float64
	MeanVisionPenalty      float64 // over discontinuations that carried one
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ByCategory:             make(map[string]int),
		RetreatmentsByCategory: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDiscontinuations = len(st.Discontinuations)
	patients := make(map[string]bool)
	penalized, totalPenalty := 0, 0.0
	for _, d := range st.Discontinuations {
		summary.ByCategory[d.Category]++
		patients[d.PatientID] = true
		if d.VisionPenalty > 0 {
			penalized++
			totalPenalty += d.VisionPenalty
		}
	}
	summary.UniquePatients = len(patients)
	if penalized > 0 {
		summary.MeanVisionPenalty = totalPenalty / float64(penalized)
	}

	summary.TotalRetreatments = len(st.Retreatments)
	for _, r := range st.Retreatments {
		summary.RetreatmentsByCategory[r.Category]++
	}

	if len(st.Catastrophic) > 0 {
		totalLoss := 0.0
		for _, c := range st.Catastrophic {
			totalLoss += c.Loss
			if c.Loss > summary.MaxCatastrophicLoss {
				summary.MaxCatastrophicLoss = c.Loss
			}
		}
		summary.CatastrophicEvents = len(st.Catastrophic)
		summary.MeanCatastrophicLoss = totalLoss / float64(len(st.Catastrophic))
	}

	return summary
}
