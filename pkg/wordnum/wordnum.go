// Package wordnum converts spoken English number phrases into numeric values.
package wordnum

import "strings"

var units = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tens = map[string]float64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var magnitudes = map[string]float64{
	"thousand": 1e3, "million": 1e6, "billion": 1e9, "trillion": 1e12,
}

// Parse converts a phrase like "one hundred twenty three point five" into
// 123.5. Unknown tokens contribute nothing; a phrase with no recognized
// number words yields 0.
func Parse(phrase string) float64 {
	tokens := strings.FieldsFunc(strings.ToLower(phrase), func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t'
	})

	var (
		result   float64
		segment  float64
		fraction bool
		place    = 0.1
	)

	for _, tok := range tokens {
		if fraction {
			if d, ok := units[tok]; ok && d < 10 {
				result += d * place
				place /= 10
			}
			continue
		}

		switch {
		case tok == "point":
			result += segment
			segment = 0
			fraction = true
		case tok == "hundred":
			segment *= 100
		default:
			if m, ok := magnitudes[tok]; ok {
				result += segment * m
				segment = 0
			} else if v, ok := units[tok]; ok {
				segment += v
			} else if v, ok := tens[tok]; ok {
				segment += v
			}
			// anything else contributes nothing
		}
	}

	if !fraction {
		result += segment
	}
	return result
}
