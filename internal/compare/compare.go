// Package compare diffs an observed record against a reference record.
package compare

import (
	"strings"

	"labelproof/internal/constants"
	"labelproof/internal/record"
)

// Difference holds both sides of a mismatching field. A nil node means the
// field was absent.
type Difference struct {
	SourceValue   record.Node `json:"source_value"`
	ObservedValue record.Node `json:"observed_value"`
}

// Report is the result of a comparison.
type Report struct {
	// InvalidTitles names the observed sections whose title marker is false.
	InvalidTitles []string `json:"invalid_titles"`
	// Differences is keyed by the dotted path of the compared field.
	Differences map[string]Difference `json:"differences"`
}

// Clean reports whether the comparison found nothing to flag.
func (r *Report) Clean() bool {
	return len(r.InvalidTitles) == 0 && len(r.Differences) == 0
}

// Comparator compares content and numeric fields.
type Comparator struct {
	numeric map[string]struct{}
}

// New returns a Comparator that treats numericKeys like content fields.
func New(numericKeys []string) *Comparator {
	numeric := make(map[string]struct{}, len(numericKeys))
	for _, k := range numericKeys {
		numeric[k] = struct{}{}
	}
	return &Comparator{numeric: numeric}
}

var punctuation = strings.NewReplacer(
	"：", ":",
	"（", "(",
	"）", ")",
	" ", "",
	"　", "",
	"\t", "",
	"\r", "",
	"\n", "",
)

// Normalize canonicalizes a value before comparison: surrounding and
// embedded whitespace is removed, full-width colon and parentheses become
// their ASCII forms and one trailing period is dropped.
func Normalize(s string) string {
	s = punctuation.Replace(strings.TrimSpace(s))
	if strings.HasSuffix(s, ".") {
		return strings.TrimSuffix(s, ".")
	}
	return strings.TrimSuffix(s, "。")
}

// Compare walks the reference record and reports every content or numeric
// field whose normalized value differs in observed, plus every observed
// section flagged with an invalid title marker. Keys present only in
// observed are not reported.
func (c *Comparator) Compare(reference, observed *record.Record) *Report {
	report := &Report{
		InvalidTitles: []string{},
		Differences:   make(map[string]Difference),
	}
	c.compareRecords(reference, observed, nil, report)
	report.InvalidTitles = invalidTitles(observed)
	return report
}

func (c *Comparator) compareRecords(ref, obs *record.Record, prefix []string, report *Report) {
	for _, key := range ref.Keys() {
		refVal, _ := ref.Get(key)
		path := append(append([]string(nil), prefix...), key)

		if sub, ok := refVal.(*record.Record); ok {
			if obsSub, ok := obs.Record(key); ok {
				c.compareRecords(sub, obsSub, path, report)
			}
			continue
		}

		if !c.isCompared(key) {
			continue
		}
		obsVal, _ := obs.Get(key)
		if Normalize(record.Text(refVal)) != Normalize(record.Text(obsVal)) {
			report.Differences[record.Path(path...)] = Difference{
				SourceValue:   refVal,
				ObservedValue: obsVal,
			}
		}
	}
}

func (c *Comparator) isCompared(key string) bool {
	if key == constants.ContentKey {
		return true
	}
	_, ok := c.numeric[key]
	return ok
}

// invalidTitles collects, in walk order, the key of every observed
// sub-record whose marker reads false.
func invalidTitles(observed *record.Record) []string {
	titles := []string{}
	_ = record.Walk(observed, func(path []string, n record.Node) error {
		sub, ok := n.(*record.Record)
		if !ok {
			return nil
		}
		if m, ok := sub.Get(constants.MarkerKey); ok {
			if marker, ok := m.(record.Marker); ok && marker.Invalid() {
				titles = append(titles, path[len(path)-1])
			}
		}
		return nil
	})
	return titles
}
