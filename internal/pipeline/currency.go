package pipeline

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	crore = 1e7
	lakh  = 1e5
)

// en-IN groups the last three integer digits, then pairs: 1,23,45,678.
var indian = message.NewPrinter(language.MustParse("en-IN"))

// FormatCurrency renders a rupee amount the way the dashboard shows it:
// crores and lakhs with two decimals, smaller amounts with Indian digit
// grouping and at most three fraction digits.
func FormatCurrency(amount float64) string {
	if amount == 0 || math.IsNaN(amount) {
		return "Rs. 0"
	}
	switch {
	case amount >= crore:
		return "Rs. " + strconv.FormatFloat(amount/crore, 'f', 2, 64) + " Cr"
	case amount >= lakh:
		return "Rs. " + strconv.FormatFloat(amount/lakh, 'f', 2, 64) + " Lakh"
	}
	return "Rs. " + indian.Sprintf("%v", number.Decimal(amount, number.MaxFractionDigits(3)))
}
