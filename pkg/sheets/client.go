package sheets

import (
	"context"
	"fmt"
	"strings"
)

// Client is the minimal spreadsheet surface the sync engine needs. Network
// implementations must honor the caller's context deadline; tests use an
// in-memory fake.
type Client interface {
	// TabTitles returns the titles of all tabs in the spreadsheet.
	TabTitles(ctx context.Context) ([]string, error)
	// AddTabs creates the named tabs.
	AddTabs(ctx context.Context, titles []string) error
	// Read returns the cell values of an A1 range. Trailing empty cells may
	// be omitted by the backend; callers must not rely on row width.
	Read(ctx context.Context, rangeA1 string) ([][]string, error)
	// Write replaces the cell values of an A1 range.
	Write(ctx context.Context, rangeA1 string, values [][]string) error
}

// Range builds an A1 range reference with the tab title always quoted, so
// titles with spaces or special characters stay valid.
func Range(tab, cells string) string {
	safe := strings.ReplaceAll(tab, "'", "''")
	return fmt.Sprintf("'%s'!%s", safe, cells)
}

// ColumnLetter converts a 1-based column index into its A1 letter form.
func ColumnLetter(index int) string {
	if index < 1 {
		return "A"
	}
	var b []byte
	for index > 0 {
		rem := (index - 1) % 26
		b = append([]byte{byte('A' + rem)}, b...)
		index = (index - 1) / 26
	}
	return string(b)
}
