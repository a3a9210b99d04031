// Package checklist loads the items a review evaluates documents against.
//
// Checklists are YAML, JSON or CSV files. YAML and JSON may hold a bare list
// or an object with an "items" key; each entry is either a string or an
// object with "id" and "content". CSV files need a "content" column and may
// carry an "id" column. Missing ids are assigned in file order, skipping ids
// already taken.
package checklist
