package journal

import "regexp"

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Long digit runs come before phone numbers so ID and card numbers are not
// reported as phones.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_NUMBER]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks email addresses, phone numbers and long identifier numbers
// that users sometimes read aloud.
func RedactPII(input string) (string, bool) {
	out := input
	changed := false
	for _, rule := range redactionRules {
		next := rule.pattern.ReplaceAllString(out, rule.replacement)
		if next != out {
			changed = true
			out = next
		}
	}
	return out, changed
}
