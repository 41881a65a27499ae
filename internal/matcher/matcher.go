// Package matcher holds ordered keyword rule tables used to classify threat
// records. Rules are evaluated in slice order so the priority of each label is
// visible in the table itself.
package matcher

import "strings"

// Rule assigns Label to any text accepted by Match.
type Rule struct {
	Label string
	Match func(text string) bool
}

// ContainsAny returns a case-sensitive predicate that accepts text holding at
// least one of the substrings.
func ContainsAny(substrings ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range substrings {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

// FirstMatch returns the label of the first rule accepting text, or fallback.
func FirstMatch(rules []Rule, text, fallback string) string {
	for _, r := range rules {
		if r.Match(text) {
			return r.Label
		}
	}
	return fallback
}

// AllMatches returns the labels of every rule accepting text, in rule order.
func AllMatches(rules []Rule, text string) []string {
	var out []string
	for _, r := range rules {
		if r.Match(text) {
			out = append(out, r.Label)
		}
	}
	return out
}

// Labels lists the labels of rules in evaluation order.
func Labels(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Label
	}
	return out
}

// Haystack joins the fields with single spaces and lower-cases the result.
func Haystack(fields ...string) string {
	return strings.ToLower(strings.Join(fields, " "))
}
