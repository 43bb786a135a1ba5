package conversation

// The reducer functions never mutate their input. Callers persist the returned
// session themselves, which keeps storage side effects out of state updates.

// Append returns a copy of the session with turn added at the end.
func Append(s Session, turn Turn) Session {
	turns := make([]Turn, len(s.Turns), len(s.Turns)+1)
	copy(turns, s.Turns)
	return Session{Turns: append(turns, cloneTurn(turn))}
}

// AnnotateLast returns a copy of the session whose last turn carries annotation.
// An empty session is returned unchanged.
func AnnotateLast(s Session, annotation *Annotation) Session {
	if len(s.Turns) == 0 || annotation == nil {
		return s
	}
	out := Clone(s)
	a := *annotation
	out.Turns[len(out.Turns)-1].Annotation = &a
	return out
}

// Cleared returns the empty session.
func Cleared() Session {
	return Session{Turns: []Turn{}}
}

// Clone deep-copies a session.
func Clone(s Session) Session {
	turns := make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		turns[i] = cloneTurn(t)
	}
	return Session{Turns: turns}
}

func cloneTurn(t Turn) Turn {
	if t.Annotation != nil {
		a := *t.Annotation
		t.Annotation = &a
	}
	return t
}
