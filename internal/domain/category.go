package domain

import (
	"strings"

	"github.com/google/uuid"
)

var categoryNamespace = uuid.MustParse("6f1c8a52-3d0e-4c1b-9a4f-2b7d5e9c8a10")

// Category is a user-defined label. Transactions and budgets refer to it by
// name only; deleting a category leaves those references in place.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// CategoryID derives a stable identifier from a category name so the same
// name maps to the same key on every device.
func CategoryID(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(categoryNamespace, []byte(key)).String()
}

// NewCategory builds a category with a derived identifier.
func NewCategory(name, icon, color string) Category {
	name = strings.TrimSpace(name)
	return Category{ID: CategoryID(name), Name: name, Icon: icon, Color: color}
}

// HasCategory reports whether list contains a category with the given name.
func HasCategory(list []Category, name string) bool {
	for _, c := range list {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// DefaultCategories is the list a new account starts with.
func DefaultCategories() []Category {
	return []Category{
		NewCategory("Food", "utensils", "orange"),
		NewCategory("Transport", "bus", "blue"),
		NewCategory("Leisure", "ticket", "purple"),
		NewCategory("Housing", "home", "slate"),
		NewCategory("Health", "heart", "red"),
		NewCategory("Salary", "wallet", "green"),
		NewCategory("Shopping", "bag", "pink"),
		NewCategory("Other", "dots", "gray"),
	}
}
