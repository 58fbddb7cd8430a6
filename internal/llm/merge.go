package llm

import "github.com/joseph-ayodele/people-extractor/internal/entity"

// MergePeople drops later records whose DedupeKey was already seen,
// preserving first-seen order.
func MergePeople(people []entity.PersonRecord) []entity.PersonRecord {
	seen := make(map[string]struct{}, len(people))
	out := make([]entity.PersonRecord, 0, len(people))
	for _, p := range people {
		k := p.DedupeKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
