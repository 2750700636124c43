package furlong

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tfkr-ae/furlong/feed"
)

// Match types understood by a Scope.
const (
	MatchTitle = "title"
	MatchURL   = "url"
)

// Rule represents a single filtering rule in the scope system.
// It contains a compiled regular expression and the field it is matched against.
type Rule struct {
	Pattern   *regexp.Regexp // Compiled regular expression pattern
	MatchType string         // Field to match: "title" or "url"
}

// Scope holds the inclusion/exclusion rules that decide which feed items are imported.
type Scope struct {
	IncludeRules map[string]Rule // key format: "pattern|matchType"
	ExcludeRules map[string]Rule
	DefaultAllow bool // Behaviour for items not matching any rule
}

// NewScope creates a new Scope with the specified default behavior.
func NewScope(defaultAllow bool) *Scope {
	return &Scope{
		IncludeRules: make(map[string]Rule),
		ExcludeRules: make(map[string]Rule),
		DefaultAllow: defaultAllow,
	}
}

// ScopeFromFeed builds the scope of a configured feed. Rules are written "title:<regex>" or
// "url:<regex>"; a rule without a prefix matches the title. A feed with include rules only
// imports items that match one of them.
func ScopeFromFeed(cfg feed.Config) (*Scope, error) {
	scope := NewScope(len(cfg.Include) == 0)
	for _, rule := range cfg.Include {
		matchType, pattern := splitRule(rule)
		if err := scope.AddRule(pattern, matchType, false); err != nil {
			return nil, fmt.Errorf("feed %s include %q: %w", cfg.Name, rule, err)
		}
	}
	for _, rule := range cfg.Exclude {
		matchType, pattern := splitRule(rule)
		if err := scope.AddRule(pattern, matchType, true); err != nil {
			return nil, fmt.Errorf("feed %s exclude %q: %w", cfg.Name, rule, err)
		}
	}
	return scope, nil
}

func splitRule(rule string) (string, string) {
	if prefix, pattern, ok := strings.Cut(rule, ":"); ok {
		switch strings.ToLower(prefix) {
		case MatchTitle, MatchURL:
			return strings.ToLower(prefix), pattern
		}
	}
	return MatchTitle, rule
}

func validMatchType(matchType string) bool {
	return matchType == MatchTitle || matchType == MatchURL
}

// AddRule adds a rule to the scope
func (s *Scope) AddRule(pattern, matchType string, exclude bool) error {
	matchType = strings.ToLower(matchType)
	if !validMatchType(matchType) {
		return fmt.Errorf("invalid match type: %s", matchType)
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	rule := Rule{
		Pattern:   compiled,
		MatchType: matchType,
	}
	key := fmt.Sprintf("%s|%s", compiled.String(), matchType)

	rules := s.IncludeRules
	list := "include"
	if exclude {
		rules = s.ExcludeRules
		list = "exclude"
	}
	if _, exists := rules[key]; exists {
		return fmt.Errorf("rule already exists in %s list", list)
	}
	rules[key] = rule
	return nil
}

// Matches determines if a *feed.Item is in scope.
// Exclude rules win over include rules on either field.
func (s *Scope) Matches(input any) bool {
	item, ok := input.(*feed.Item)
	if !ok {
		return s.DefaultAllow
	}
	title, url := item.Title, item.Link

	target := func(rule Rule) string {
		if rule.MatchType == MatchURL {
			return url
		}
		return title
	}

	for _, rule := range s.ExcludeRules {
		if rule.Pattern.MatchString(target(rule)) {
			return false
		}
	}
	for _, rule := range s.IncludeRules {
		if rule.Pattern.MatchString(target(rule)) {
			return true
		}
	}
	return s.DefaultAllow
}
