// Package catalog groups extracted documents into display sections.
package catalog

import (
	"sort"

	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// Build groups records by category. Groups are ordered alphabetically with
// Uncategorized last; documents within a group are newest first, keeping
// input order for equal dates. Build does not modify records.
func Build(records []*model.DocumentRecord) model.Catalog {
	byCategory := make(map[string][]*model.DocumentRecord)
	var names []string
	for _, rec := range records {
		if _, ok := byCategory[rec.Category]; !ok {
			names = append(names, rec.Category)
		}
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}

	SortCategories(names)

	groups := make([]model.Group, 0, len(names))
	for _, name := range names {
		docs := byCategory[name]
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[i].Date.After(docs[j].Date)
		})
		groups = append(groups, model.Group{Name: name, Documents: docs})
	}
	return model.NewCatalog(groups)
}

// SortCategories orders names alphabetically, Uncategorized always last.
func SortCategories(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := names[i], names[j]
		if (a == model.Uncategorized) != (b == model.Uncategorized) {
			return b == model.Uncategorized
		}
		return a < b
	})
}
