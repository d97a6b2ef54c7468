package patient

// VisitContext is the engine-side context handed to enhancers.
type VisitContext struct {
	Day          int
	Phase        Phase
	IntervalDays int
	Monitoring   bool // visit taken while discontinued
	Retreated    bool // treatment restarted at this visit
	Discontinued string
	Drug         string
}

// Enhancer augments a base visit record with metadata. Enhancers must not
// change the clinical fields (date, state, treatment, vision).
type Enhancer func(base Visit, ctx VisitContext, p *Patient) Visit

// ApplyEnhancers runs the chain in order. A nil or empty chain returns base.
func ApplyEnhancers(base Visit, ctx VisitContext, p *Patient, chain []Enhancer) Visit {
	out := base
	for _, enhance := range chain {
		if enhance == nil {
			continue
		}
		enhanced := enhance(out, ctx, p)
		enhanced.Date = base.Date
		enhanced.State = base.State
		enhanced.TreatmentGiven = base.TreatmentGiven
		enhanced.Vision = base.Vision
		out = enhanced
	}
	return out
}

// PhaseEnhancer stamps protocol phase, interval, visit subtype, the
// components performed and, when treated, the drug.
func PhaseEnhancer(base Visit, ctx VisitContext, _ *Patient) Visit {
	md := make(map[string]any, len(base.Metadata)+6)
	for k, v := range base.Metadata {
		md[k] = v
	}
	md["phase"] = string(ctx.Phase)
	md["interval_days"] = ctx.IntervalDays

	components := []string{"vision_test", "oct_scan"}
	switch {
	case ctx.Monitoring && !base.TreatmentGiven:
		md["visit_subtype"] = "monitoring"
	case base.TreatmentGiven:
		md["visit_subtype"] = "injection"
		components = append(components, "injection")
		if ctx.Drug != "" {
			md["drug"] = ctx.Drug
		}
	default:
		md["visit_subtype"] = "assessment"
	}
	md["components_performed"] = components
	if ctx.Retreated {
		md["retreatment"] = true
	}
	if ctx.Discontinued != "" {
		md["discontinuation_type"] = ctx.Discontinued
	}
	base.Metadata = md
	return base
}
