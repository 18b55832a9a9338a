// Package extract maps a decoded GraphQL data object onto named
// result sets using the original query document to decide which
// top-level fields are relevant.
package extract

import (
	language "github.com/queryline/queryline/internal/language"
	result "github.com/queryline/queryline/internal/result"
)

// Extract returns the result sets for the top-level selections of the
// query document, in document order and alias-aware. A selected key
// that is absent or null in data yields an empty row slice, not an
// absent key. When the document cannot be parsed the data keys are used
// directly, in sorted order.
func Extract(data map[string]any, queryText string) *result.Set {
	names := topLevelNames(queryText)
	if names == nil {
		return result.FromMap(data)
	}
	out := result.NewSet()
	for _, name := range names {
		out.Put(name, result.Rows(data[name]))
	}
	return out
}

// topLevelNames returns the response names (aliases when present) of
// the operation's top-level field selections. Fragments at the top
// level are flattened; duplicate response names keep their first
// position.
func topLevelNames(queryText string) []string {
	doc, err := language.ParseQuery(queryText)
	if err != nil || len(doc.Operations) == 0 {
		return nil
	}

	var names []string
	seen := map[string]struct{}{}
	var walk func(set language.SelectionSet)
	walk = func(set language.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *language.Field:
				name := s.Alias
				if name == "" {
					name = s.Name
				}
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					names = append(names, name)
				}
			case *language.InlineFragment:
				walk(s.SelectionSet)
			case *language.FragmentSpread:
				if frag := doc.Fragments.ForName(s.Name); frag != nil {
					walk(frag.SelectionSet)
				}
			}
		}
	}
	walk(doc.Operations[0].SelectionSet)
	if len(names) == 0 {
		return nil
	}
	return names
}
