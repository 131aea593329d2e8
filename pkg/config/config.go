// Package config provides the configuration surface for the record/replay
// engine.
//
// Configuration is an explicit value passed into engine.New; nothing in the
// codebase reads configuration ambiently. A Config can be built in code or
// loaded from an autorecord.yaml / autorecord.json file.
package config

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultFixtureThreshold is the inline response size limit in bytes.
// Responses serialized above it are externalized into fixture blobs.
const DefaultFixtureThreshold = 70 * 1024 * 1024

// Config controls how the record/replay engine behaves.
type Config struct {
	// CleanMocks prunes sessions for tests not seen this run at suite
	// end. Clean runs never persist new recordings.
	CleanMocks bool `json:"cleanMocks" yaml:"cleanMocks"`

	// ForceRecord re-records every test this run.
	ForceRecord bool `json:"forceRecord" yaml:"forceRecord"`

	// RecordTests names tests that are always re-recorded.
	RecordTests []string `json:"recordTests" yaml:"recordTests"`

	// BlacklistRoutes lists url substrings excluded from observation and
	// replay entirely.
	BlacklistRoutes []string `json:"blacklistRoutes" yaml:"blacklistRoutes"`

	// WhitelistHeaders lists regex patterns of response header names to
	// persist. Headers matching no pattern are dropped, which bounds
	// stored payload size and keeps volatile headers (auth tokens,
	// dates) out of recordings. An empty list persists no headers.
	WhitelistHeaders []string `json:"whitelistHeaders" yaml:"whitelistHeaders"`

	// FixtureThreshold overrides DefaultFixtureThreshold when positive.
	FixtureThreshold int `json:"fixtureThreshold,omitempty" yaml:"fixtureThreshold,omitempty"`

	headerPatterns []*regexp.Regexp
}

// Default returns the zero policy: record on first run, replay afterwards,
// no pruning, no headers persisted.
func Default() Config {
	return Config{FixtureThreshold: DefaultFixtureThreshold}
}

// ValidationError is a single configuration problem.
type ValidationError struct {
	// Path is the config path, e.g. "whitelistHeaders[0]".
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationResult collects every problem found in a Config rather than
// stopping at the first.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message.
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(path, message string) {
	r.Errors = append(r.Errors, ValidationError{Path: path, Message: message})
}

// Validate checks the configuration and compiles the header whitelist.
// It must be called before KeepHeader; engine.New does this.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if c.FixtureThreshold == 0 {
		c.FixtureThreshold = DefaultFixtureThreshold
	}
	if c.FixtureThreshold < 0 {
		result.AddError("fixtureThreshold", "must be positive")
	}

	c.headerPatterns = c.headerPatterns[:0]
	for i, pat := range c.WhitelistHeaders {
		re, err := regexp.Compile(pat)
		if err != nil {
			result.AddError(fmt.Sprintf("whitelistHeaders[%d]", i), fmt.Sprintf("invalid pattern %q: %v", pat, err))
			continue
		}
		c.headerPatterns = append(c.headerPatterns, re)
	}

	for i, sub := range c.BlacklistRoutes {
		if sub == "" {
			result.AddError(fmt.Sprintf("blacklistRoutes[%d]", i), "empty substring would blacklist every url")
		}
	}

	return result
}

// Blacklisted reports whether url matches any configured blacklist
// substring.
func (c *Config) Blacklisted(url string) bool {
	for _, sub := range c.BlacklistRoutes {
		if sub != "" && strings.Contains(url, sub) {
			return true
		}
	}
	return false
}

// KeepHeader reports whether a response header name matches the whitelist.
func (c *Config) KeepHeader(name string) bool {
	for _, re := range c.headerPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// AlwaysRecord reports whether the named test is in the explicit
// always-record list.
func (c *Config) AlwaysRecord(testID string) bool {
	for _, name := range c.RecordTests {
		if name == testID {
			return true
		}
	}
	return false
}

// Threshold returns the effective externalization threshold in bytes.
func (c *Config) Threshold() int {
	if c.FixtureThreshold > 0 {
		return c.FixtureThreshold
	}
	return DefaultFixtureThreshold
}
