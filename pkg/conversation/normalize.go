package conversation

// NormalizeHistory collapses every run of consecutive same-role turns to the
// last turn of the run, so the outbound history strictly alternates.
func NormalizeHistory(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for i, t := range turns {
		if i+1 < len(turns) && turns[i+1].Role == t.Role {
			continue
		}
		out = append(out, t)
	}
	return out
}
