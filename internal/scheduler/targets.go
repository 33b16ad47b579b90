package scheduler

// Target is one (run age, forecast offset) pair to fetch.
type Target struct {
	RunAge int64
	Offset int
}

// HoursBack is how far in the past the target's data lies.
func (t Target) HoursBack() int64 {
	return t.RunAge - int64(t.Offset)
}

// historicalTargets maps each desired lookback over the last 24 hours onto
// a real GFS publication: for every 3-hour step back it picks the smallest
// run age in {6,12,18,24} whose offset (runAge − hoursBack) is a
// non-negative multiple of 3 no larger than 24.
func historicalTargets() []Target {
	var targets []Target

	for hoursBack := 0; hoursBack <= 21; hoursBack += 3 {
		for _, runAge := range []int{6, 12, 18, 24} {
			offset := runAge - hoursBack
			if offset >= 0 && offset%3 == 0 && offset <= 24 {
				targets = append(targets, Target{RunAge: int64(runAge), Offset: offset})
				break
			}
		}
	}

	return targets
}
