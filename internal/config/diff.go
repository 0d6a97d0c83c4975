package config

import "strings"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: everything else
// (providers, audio formats, listen address) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VocabularyChanged is true when terms were added or removed. The
	// corrector is rebuilt from the new list.
	VocabularyChanged bool
	AddedTerms        []string
	RemovedTerms      []string

	// InstructionsChanged is true when the live system instruction changed.
	// It applies to the next session; an active session keeps the
	// instruction it was opened with.
	InstructionsChanged bool
}

// Empty reports whether the diff carries no changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VocabularyChanged && !d.InstructionsChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldTerms := termSet(old.Vocabulary)
	newTerms := termSet(new.Vocabulary)
	for _, term := range new.Vocabulary {
		if _, ok := oldTerms[strings.ToLower(term)]; !ok {
			d.AddedTerms = append(d.AddedTerms, term)
		}
	}
	for _, term := range old.Vocabulary {
		if _, ok := newTerms[strings.ToLower(term)]; !ok {
			d.RemovedTerms = append(d.RemovedTerms, term)
		}
	}
	d.VocabularyChanged = len(d.AddedTerms) > 0 || len(d.RemovedTerms) > 0

	if old.Live.Instructions != new.Live.Instructions {
		d.InstructionsChanged = true
	}

	return d
}

func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}
