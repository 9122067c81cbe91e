// Package ignore decides which paths are excluded from an upload.
//
// Rules come in three kinds, mirroring the patterns operators actually
// write for game-engine project trees: an exact file name, a *-prefixed
// suffix wildcard, and a case-insensitive substring match against
// directory names. A directory that matches is pruned whole — its
// subtree is never visited.
package ignore

import (
	"path/filepath"
	"strings"
)

// Kind identifies how a rule's pattern is applied.
type Kind int

const (
	// ExactName matches when the base name equals the pattern.
	ExactName Kind = iota
	// SuffixWildcard matches when the base name ends with the pattern's
	// suffix (the text after the leading *).
	SuffixWildcard
	// DirSubstring matches directories whose name contains the pattern,
	// case-insensitively. Never matches regular files.
	DirSubstring
)

// Rule is a single compiled ignore pattern.
type Rule struct {
	Pattern string
	Kind    Kind
}

// Defaults returns the built-in ignore patterns: VCS metadata, engine
// build/cache/intermediate directories, and IDE project files.
func Defaults() []string {
	return []string{
		".git",
		"Binaries",
		"DerivedDataCache",
		"Intermediate",
		"Saved",
		"Build",
		"*.sln",
		"*.vcxproj",
		"*.opendb",
		"*.ide",
		"*.suo",
		"*.user",
	}
}

// Matcher holds an immutable rule set for one upload session.
type Matcher struct {
	rules []Rule
}

// NewMatcher compiles the given patterns into a Matcher. A pattern
// beginning with * becomes a suffix wildcard; any other pattern acts as
// an exact name for files and additionally as a case-insensitive
// substring for directory names.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "*") {
			m.rules = append(m.rules, Rule{Pattern: p[1:], Kind: SuffixWildcard})
			continue
		}
		m.rules = append(m.rules, Rule{Pattern: p, Kind: ExactName})
		m.rules = append(m.rules, Rule{Pattern: p, Kind: DirSubstring})
	}
	return m
}

// Rules returns a copy of the compiled rule set.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Matches reports whether the path is excluded. Matching is performed
// against the base name only; directory pruning in the scanner ensures
// parent matches exclude entire subtrees.
func (m *Matcher) Matches(path string, isDir bool) bool {
	name := filepath.Base(path)
	for _, r := range m.rules {
		switch r.Kind {
		case ExactName:
			if name == r.Pattern {
				return true
			}
		case SuffixWildcard:
			if strings.HasSuffix(name, r.Pattern) {
				return true
			}
		case DirSubstring:
			if isDir && strings.Contains(strings.ToLower(name), strings.ToLower(r.Pattern)) {
				return true
			}
		}
	}
	return false
}
