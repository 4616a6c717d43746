package corpus

import "github.com/jpalmerr/corpuswatch/internal/backend"

// DeriveProperties lists the property names of every annotation type in h:
// type properties first, then token properties, each name once in
// first-seen order.
func DeriveProperties(h backend.Hierarchy) map[string][]string {
	out := make(map[string][]string, len(h.AnnotationTypes))
	for _, atype := range h.AnnotationTypes {
		names := make([]string, 0, len(h.TypeProperties[atype])+len(h.TokenProperties[atype]))
		for _, p := range h.TypeProperties[atype] {
			names = appendUnique(names, p.Name)
		}
		for _, p := range h.TokenProperties[atype] {
			names = appendUnique(names, p.Name)
		}
		out[atype] = names
	}
	return out
}

// DeriveSubsets lists the subset names of every annotation type in h:
// type subsets first, then token subsets, each name once in first-seen order.
func DeriveSubsets(h backend.Hierarchy) map[string][]string {
	out := make(map[string][]string, len(h.AnnotationTypes))
	for _, atype := range h.AnnotationTypes {
		names := []string{}
		for _, s := range h.SubsetTypes[atype] {
			names = appendUnique(names, s)
		}
		for _, s := range h.SubsetTokens[atype] {
			names = appendUnique(names, s)
		}
		out[atype] = names
	}
	return out
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
