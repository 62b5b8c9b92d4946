// Package validation содержит нормализацию пользовательского ввода для бизнес-правил.
package validation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCity приводит название города к сравнимому виду:
// нижний регистр, без диакритики ("Medellín" -> "medellin").
func NormalizeCity(city string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, city)
	if err != nil {
		normalized = city
	}
	return strings.ToLower(strings.TrimSpace(normalized))
}

// CityMatches проверяет, относится ли адрес к разрешённой зоне обслуживания.
func CityMatches(city, allowed string) bool {
	return strings.Contains(NormalizeCity(city), NormalizeCity(allowed))
}
