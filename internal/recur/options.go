package recur

// Options bounds a single expansion call. The cap exists so never-terminated
// rules queried against pathological windows fail with ErrExpansionBounded
// instead of looping.
type Options struct {
	// MaxOccurrences is the maximum number of occurrences a single Expand
	// call may emit into the window. Zero means DefaultOptions.MaxOccurrences.
	MaxOccurrences int
}

// DefaultOptions suits month and week calendar views.
var DefaultOptions = Options{
	MaxOccurrences: 1000,
}

// StrictOptions is for untrusted or interactive input, e.g. previewing a
// rule while the user edits the form.
var StrictOptions = Options{
	MaxOccurrences: 100,
}

func (o Options) withDefaults() Options {
	if o.MaxOccurrences <= 0 {
		o.MaxOccurrences = DefaultOptions.MaxOccurrences
	}
	return o
}
