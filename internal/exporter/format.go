package exporter

import (
	"fmt"
	"strconv"
)

// formatIndex formats an index value for CSV output at the precision the
// oracle reports them
func formatIndex(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// formatFloat formats a general float64 value with 4 decimal places
func formatFloat(f float64) string {
	return fmt.Sprintf("%.4f", f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
