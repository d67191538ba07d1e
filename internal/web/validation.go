// Package web - Input validation for web handlers
//
// EDUCATIONAL NOTES:
// ------------------
// Requests are checked at the HTTP layer before they reach a table:
//
// 1. Table names in URLs must be identifiers, the same names expressions
//    use for them. Anything else can never name a table.
//
// 2. Select requests are checked for the shape of their fields. Group
//    keys must be column names, and sizes can not be negative. Whether a
//    column exists is left to the cursor, which knows the schema.
//
// 3. All failures are ValidationErrors, which the API answers with
//    400 Bad Request.

package web

import (
	"fmt"
	"regexp"
)

// identifierPattern matches a letter or underscore followed by letters,
// digits and underscores.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidIdentifier reports whether s can name a table or a column.
//
//	IsValidIdentifier("user_table") // true
//	IsValidIdentifier("123start")   // false
//	IsValidIdentifier("has-dash")   // false
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// validateTableName checks a table name taken from a URL.
func validateTableName(name string) error {
	if !IsValidIdentifier(name) {
		return &ValidationError{Field: "table name", Reason: fmt.Sprintf("%q is not an identifier", name)}
	}
	return nil
}

// validate checks a select request before any cursor is built.
func (req *SelectRequest) validate() error {
	if req.Size < 0 {
		return &ValidationError{Field: "size", Reason: fmt.Sprintf("%d is negative", req.Size)}
	}
	for i, f := range req.Fields {
		if f == "" {
			return &ValidationError{Field: "fields", Reason: fmt.Sprintf("field %d is empty", i)}
		}
	}
	for _, key := range req.GroupBy {
		if !IsValidIdentifier(key) {
			return &ValidationError{Field: "groupby", Reason: fmt.Sprintf("%q is not a column name", key)}
		}
	}
	for i, key := range req.OrderBy {
		if key == "" {
			return &ValidationError{Field: "orderby", Reason: fmt.Sprintf("key %d is empty", i)}
		}
	}
	return nil
}
