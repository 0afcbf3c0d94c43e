package tools

import "strings"

// defaultSymbol is shown for any icon code without a mapping.
const defaultSymbol = "cloud.fill"

type symbolPair struct {
	day   string
	night string
}

// weatherSymbols maps OpenWeatherMap icon prefixes to SF Symbols names.
var weatherSymbols = map[string]symbolPair{
	"01": {"sun.max.fill", "moon.stars.fill"},
	"02": {"cloud.sun.fill", "cloud.moon.fill"},
	"03": {"cloud.fill", "cloud.fill"},
	"04": {"cloud.fill", "cloud.fill"},
	"09": {"cloud.drizzle.fill", "cloud.drizzle.fill"},
	"10": {"cloud.sun.rain.fill", "cloud.moon.rain.fill"},
	"11": {"cloud.bolt.rain.fill", "cloud.bolt.rain.fill"},
	"13": {"cloud.snow.fill", "cloud.snow.fill"},
	"50": {"cloud.fog.fill", "cloud.fog.fill"},
}

// IconSymbol maps an icon code such as "10n" to a symbol name.
func IconSymbol(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) < 2 {
		return defaultSymbol
	}
	pair, ok := weatherSymbols[code[:2]]
	if !ok {
		return defaultSymbol
	}
	if strings.HasSuffix(code, "n") {
		return pair.night
	}
	return pair.day
}
