package extract

import (
	"strings"

	"labelproof/internal/constants"
	"labelproof/internal/record"
)

// CheckContent lists the paths of empty content fields and empty numeric
// fields in rec. A content field is reported by its parent's path; a
// numeric field by its own path.
func CheckContent(rec *record.Record, numericKeys []string) []string {
	numeric := make(map[string]struct{}, len(numericKeys))
	for _, k := range numericKeys {
		numeric[k] = struct{}{}
	}

	missing := []string{}
	_ = record.Walk(rec, func(path []string, n record.Node) error {
		if _, isRecord := n.(*record.Record); isRecord {
			return nil
		}
		key := path[len(path)-1]
		if strings.TrimSpace(record.Text(n)) != "" {
			return nil
		}
		switch {
		case key == constants.ContentKey:
			missing = append(missing, record.Path(path[:len(path)-1]...))
		default:
			if _, ok := numeric[key]; ok {
				missing = append(missing, record.Path(path...))
			}
		}
		return nil
	})
	return missing
}

// RequireContent wraps CheckContent and returns a MissingContent *Error
// when anything is empty.
func RequireContent(rec *record.Record, numericKeys []string) error {
	if missing := CheckContent(rec, numericKeys); len(missing) > 0 {
		return &Error{Kind: KindMissingContent, Missing: missing}
	}
	return nil
}
