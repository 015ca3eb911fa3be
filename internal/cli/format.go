// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
)

// FormatMoney formats a rupee amount, e.g. 150000 -> "Rs. 1.50 Lakh".
func FormatMoney(v float64) string {
	return pipeline.FormatCurrency(v)
}

// FormatQuantity formats a stock quantity with its unit, dropping a zero
// fraction: 12 bags, 2.5 m3.
func FormatQuantity(q model.Amount, unit string) string {
	s := strconv.FormatFloat(q.Float(), 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if unit == "" {
		return s
	}
	return s + " " + unit
}

// FormatDate formats a date as "15 Jan 2024", or "-" when unset.
func FormatDate(d model.Date) string {
	if d.IsZero() {
		return "-"
	}
	return d.Format("02 Jan 2006")
}

// FormatStatus turns IN_PROGRESS into "In Progress".
func FormatStatus(s string) string {
	if s == "" {
		return "-"
	}
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(s), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a 0-100 value.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// FormatDelta formats a money delta with its sign.
func FormatDelta(current, previous float64) string {
	delta := current - previous
	if delta >= 0 {
		return "+" + FormatMoney(delta)
	}
	return "-" + FormatMoney(-delta)
}

// Truncate shortens s to at most n runes, ending with "…" when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
