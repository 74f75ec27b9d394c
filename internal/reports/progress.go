package reports

// ProgressFunc receives advisory export progress as coarse 0-100
// milestones. It never affects correctness and may be nil.
type ProgressFunc func(percent int)

func (f ProgressFunc) report(percent int) {
	if f != nil {
		f(percent)
	}
}
