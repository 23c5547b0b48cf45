package addition

import "strings"

// Dedup concatenates lists in order and drops every record structurally
// identical to one already seen. The first occurrence keeps its position.
// Records that cannot be canonicalized are kept as-is.
func Dedup(lists ...[]Record) []Record {
	total := 0
	for _, l := range lists {
		total += len(l)
	}

	seen := make(map[string]struct{}, total)
	out := make([]Record, 0, total)
	for _, l := range lists {
		for _, r := range l {
			if r == nil {
				continue
			}
			key, err := r.Key()
			if err != nil {
				out = append(out, r)
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// FilterByType keeps the records whose type tag contains tag as a substring.
// Substring matching is the contract: composite tags such as
// "plugin-federated" match a "plugin" request. An empty tag matches everything.
func FilterByType(records []Record, tag string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if strings.Contains(r.Type(), tag) {
			out = append(out, r)
		}
	}
	return out
}
