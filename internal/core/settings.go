package core

// Settings is the read-only settings collaborator. It is queried every tick
// and never mutated by the core.
type Settings interface {
	// Enabled reports the global spoilage switch.
	Enabled() bool
	// KnownContentType reports whether the named content type is tracked.
	KnownContentType(name string) bool
	// ExpirationThreshold returns the age, in periods, at which quantity of
	// the given content type spoils.
	ExpirationThreshold(contentType string) float64
	// WarnThreshold returns the age at which quantity is reported as close
	// to spoiling.
	WarnThreshold(contentType string) float64
}

// ContentTypeSetting holds the per-type thresholds of a StaticSettings entry.
type ContentTypeSetting struct {
	ExpirationThreshold float64
	WarnThreshold       float64
}

// StaticSettings is a fixed in-memory Settings implementation used by tests
// and as the fallback when no configuration collaborator is wired.
type StaticSettings struct {
	Disabled bool
	Types    map[string]ContentTypeSetting
}

// Enabled implements Settings.
func (s StaticSettings) Enabled() bool { return !s.Disabled }

// KnownContentType implements Settings.
func (s StaticSettings) KnownContentType(name string) bool {
	_, ok := s.Types[name]
	return ok
}

// ExpirationThreshold implements Settings. Unknown types never expire.
func (s StaticSettings) ExpirationThreshold(contentType string) float64 {
	if t, ok := s.Types[contentType]; ok {
		return t.ExpirationThreshold
	}
	return infiniteThreshold
}

// WarnThreshold implements Settings.
func (s StaticSettings) WarnThreshold(contentType string) float64 {
	if t, ok := s.Types[contentType]; ok {
		return t.WarnThreshold
	}
	return infiniteThreshold
}

// infiniteThreshold is an age no batch reaches in practice; unknown content
// types neither warn nor expire.
const infiniteThreshold = 1e18
