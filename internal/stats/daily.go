package stats

// Helpers around the per-day biggest hit. Only the current UTC day is kept.

// ResetDaily clears the per-day biggest hits.
func (r *Recorder) ResetDaily() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.dailyMax {
		delete(r.dailyMax, k)
	}
}

// pruneDailyLocked drops every day but today. Caller holds r.mu.
func (r *Recorder) pruneDailyLocked(today string) {
	for k := range r.dailyMax {
		if k != today {
			delete(r.dailyMax, k)
		}
	}
}
