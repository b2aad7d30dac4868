package models

// ContextFile describes one CSV file made available to the assistant as
// analysis context.
type ContextFile struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Columns  []string `json:"columns"`
	RowCount int      `json:"rowCount"`
}
