package service

import (
	"strings"

	analytics "github.com/smallbiznis/pulse/internal/analytics/domain"
)

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}

// displayName renders a category name for presentation. Expense categories
// arrive snake_cased; other dimensions keep their stored names.
func displayName(categoryType analytics.CategoryType, name string) string {
	name = strings.TrimSpace(name)
	switch categoryType {
	case analytics.CategoryTypeExpense:
		return titleCase(strings.ReplaceAll(name, "_", " "))
	case analytics.CategoryTypeService:
		return truncate(name, 200)
	default:
		return name
	}
}

func titleCase(value string) string {
	words := strings.Fields(value)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
