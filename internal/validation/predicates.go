package validation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	namePattern  = regexp.MustCompile(`^[\p{L}][\p{L}\s'.-]*$`)

	validate = validator.New()
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
	maxNameLength  = 50
)

func Email(s string) bool {
	return emailPattern.MatchString(s)
}

// Phone acepta digitos con separadores comunes (espacios, guiones, puntos,
// parentesis) y un + inicial. Cuenta entre 10 y 15 digitos.
func Phone(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

func Required(s string) bool {
	return strings.TrimSpace(s) != ""
}

// MinLength y MaxLength cuentan runas sobre el valor recortado.
func MinLength(s string, n int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= n
}

func MaxLength(s string, n int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) <= n
}

func Numeric(s string) bool {
	_, ok := parseNumber(s)
	return ok
}

func PositiveNumber(s string) bool {
	v, ok := parseNumber(s)
	return ok && v > 0
}

// ZipCode valida codigos postales de EE.UU. (12345 o 12345-6789).
func ZipCode(s string) bool {
	return zipPattern.MatchString(strings.TrimSpace(s))
}

// URL exige esquema http o https y host.
func URL(s string) bool {
	return validate.Var(strings.TrimSpace(s), "required,http_url") == nil
}

func Name(s string) bool {
	s = strings.TrimSpace(s)
	return MinLength(s, 2) && MaxLength(s, maxNameLength) && namePattern.MatchString(s)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
