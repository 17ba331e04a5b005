package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Hot-reloadable sections are reported as flags; everything else that
// changed is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatchingChanged is set when threshold or algorithm changed.
	MatchingChanged bool

	PromptsChanged bool
	AppsChanged    bool

	// RestartRequired names the keys whose new values only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MatchingChanged || d.PromptsChanged ||
		d.AppsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Matching.Threshold != new.Matching.Threshold ||
		old.Matching.Algorithm != new.Matching.Algorithm {
		d.MatchingChanged = true
	}
	d.PromptsChanged = old.Feedback.Prompts != new.Feedback.Prompts
	d.AppsChanged = !slices.EqualFunc(old.Apps, new.Apps, appEqual)

	restart := func(key string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, key)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("recognition", !reflect.DeepEqual(old.Recognition, new.Recognition))
	restart("matching.fold_language", old.Matching.FoldLanguage != new.Matching.FoldLanguage)
	restart("speech", !reflect.DeepEqual(old.Speech, new.Speech))

	return d
}

func appEqual(a, b AppConfig) bool {
	return a.Name == b.Name && a.ID == b.ID && a.Command == b.Command &&
		slices.Equal(a.Args, b.Args)
}
