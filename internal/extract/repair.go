package extract

import (
	"errors"
	"regexp"
	"strings"
)

// RepairStep is one text transformation applied to a raw oracle response
// before it is parsed.
type RepairStep struct {
	Name  string
	Apply func(string) (string, error)
}

var (
	errNoObject = errors.New("no JSON object delimiters in response")

	markerLiteralRe = regexp.MustCompile(`(["']title_valid["']\s*:\s*)(?i:(true|false))\b`)
	lineCommentRe   = regexp.MustCompile(`//[^\n]*\n`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// RepairSteps is the ordered repair pipeline. Each step is a no-op on
// already well-formed input.
var RepairSteps = []RepairStep{
	{Name: "isolate_object", Apply: isolateObject},
	{Name: "quote_markers", Apply: quoteMarkers},
	{Name: "normalize_quotes", Apply: normalizeQuotes},
	{Name: "strip_comments", Apply: stripComments},
}

// Repair runs every step of RepairSteps over response. On failure the
// returned error is an *Error naming the failed step.
func Repair(response string) (string, error) {
	out := response
	for _, step := range RepairSteps {
		next, err := step.Apply(out)
		if err != nil {
			return "", &Error{Kind: KindMalformedResponse, Step: step.Name, Err: err}
		}
		out = next
	}
	return out, nil
}

// isolateObject keeps the text from the first '{' to the last '}'.
func isolateObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", errNoObject
	}
	return s[start : end+1], nil
}

// quoteMarkers turns bare true/false marker values into lowercase strings.
func quoteMarkers(s string) (string, error) {
	return markerLiteralRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := markerLiteralRe.FindStringSubmatch(m)
		return sub[1] + `"` + strings.ToLower(sub[2]) + `"`
	}), nil
}

// normalizeQuotes replaces every single quote with a double quote.
// Apostrophes inside values are rewritten too.
func normalizeQuotes(s string) (string, error) {
	return strings.ReplaceAll(s, "'", `"`), nil
}

// stripComments removes // line comments and /* */ block comments. A line
// comment is removed together with its terminating newline.
func stripComments(s string) (string, error) {
	s = lineCommentRe.ReplaceAllString(s, "")
	return blockCommentRe.ReplaceAllString(s, ""), nil
}
