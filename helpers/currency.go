// Package helpers holds small presentation utilities used by the API
// layer.
package helpers

import "fmt"

// FormatUSD formats a number as a thousands-separated USD amount,
// adapted from the teacher's FormatRupiah digit-grouping routine for
// the dollar-denominated notionals this system deals in.
func FormatUSD(amount float64) string {
	value := int64(amount)

	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%d", value)
	length := len(str)

	if length <= 3 {
		if negative {
			return fmt.Sprintf("-$%s", str)
		}
		return fmt.Sprintf("$%s", str)
	}

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return fmt.Sprintf("-$%s", result)
	}
	return fmt.Sprintf("$%s", result)
}
