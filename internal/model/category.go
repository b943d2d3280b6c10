// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"
)

// Category is the therapeutic approach a query is routed to.
type Category string

const (
	// CategoryA is the cognitive-behavioral approach.
	CategoryA Category = "A"
	// CategoryB is the dialectical-behavioral approach.
	CategoryB Category = "B"
	// CategoryUnknown is returned when neither approach has enough evidence.
	CategoryUnknown Category = "Unknown"
)

// Categories returns the indexable categories in their canonical order.
func Categories() []Category {
	return []Category{CategoryA, CategoryB}
}

// Valid reports whether c is one of the indexable categories.
func (c Category) Valid() bool {
	return c == CategoryA || c == CategoryB
}

// Label returns a human readable name for the category.
func (c Category) Label() string {
	switch c {
	case CategoryA:
		return "Cognitive Behavioral (A)"
	case CategoryB:
		return "Dialectical Behavioral (B)"
	default:
		return "Unknown"
	}
}

// ParseCategory accepts A, B, Unknown and the CBT/DBT aliases, case-insensitively.
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "CBT":
		return CategoryA, nil
	case "B", "DBT":
		return CategoryB, nil
	case "UNKNOWN":
		return CategoryUnknown, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}
