package fusion

// Recommend picks a bit-merge method from what the revisions carry:
// timing-aware for four or more revisions that all have timing, weighted
// when any revision has confidence values or passed its integrity check,
// majority for one or two plain revisions, and adaptive otherwise.
func Recommend(revs []Revision) Method {
	allTiming := len(revs) > 0
	anyTiming, anyConfidence, anyIntegrity := false, false, false
	for i := range revs {
		if len(revs[i].Timing) > 0 {
			anyTiming = true
		} else {
			allTiming = false
		}
		if len(revs[i].Confidence) > 0 {
			anyConfidence = true
		}
		if revs[i].IntegrityOK {
			anyIntegrity = true
		}
	}

	switch {
	case len(revs) >= 4 && allTiming:
		return MethodTimingAware
	case anyConfidence || anyIntegrity:
		return MethodWeighted
	case len(revs) <= 2 && !anyTiming:
		return MethodMajority
	default:
		return MethodAdaptive
	}
}
