package cherrypick

import (
	"fmt"
	"regexp"
)

// cherry-pick markers seen in PR bodies, e.g. "Cherry-pick from master" or
// "also pick pr: #45237"
var keywordPattern = regexp.MustCompile(`(?i)cherry[- ]?pick|backport|pick\s+pr`)

// Matcher decides whether a candidate PR body references a source PR as a
// cherry-pick. Rules are evaluated top-down and the first hit wins, so adding
// a rule never changes the outcome of the rules before it. The rule name
// becomes the DetectionMethod of the result.
type Matcher struct {
	rules []rule
}

type rule struct {
	name  string
	match func(body string, sourcePR int) bool
}

func NewMatcher() *Matcher {
	return &Matcher{
		rules: []rule{
			{name: "keyword+reference", match: keywordAndReference},
			{name: "pr-prefix", match: prPrefixReference},
		},
	}
}

// Match reports whether body references sourcePR as a cherry-pick, and the
// name of the rule that decided it.
func (m *Matcher) Match(body string, sourcePR int) (string, bool) {
	if body == "" {
		return "", false
	}
	for _, r := range m.rules {
		if r.match(body, sourcePR) {
			return r.name, true
		}
	}
	return "", false
}

// referencePattern matches a reference to the given PR number in any
// recognized form: "#45309", a pull URL ending in /pull/45309, or a
// "pr: 45309" style mention. The trailing \b keeps #45309 from matching
// inside #453091.
func referencePattern(sourcePR int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)(?:#|/pull/|\bpr\s*:\s*#?)%d\b`, sourcePR))
}

func keywordAndReference(body string, sourcePR int) bool {
	return keywordPattern.MatchString(body) && referencePattern(sourcePR).MatchString(body)
}

// prPrefixReference recognizes the "pr: #45309" line convention used by
// backport tooling, which carries no cherry-pick keyword at all. A bare
// "#45309" mention elsewhere in the body is not enough.
func prPrefixReference(body string, sourcePR int) bool {
	pattern := fmt.Sprintf(`(?im)^\s*(?:also\s+)?(?:pick\s+)?pr\s*:\s*(?:#?%d\b|\S*/pull/%d\b)`, sourcePR, sourcePR)
	return regexp.MustCompile(pattern).MatchString(body)
}
