package prompt

import "fmt"

// WeatherExtractionSystemPrompt instructs the cheap tier to turn search text into weather JSON.
const WeatherExtractionSystemPrompt = `You extract weather data from web search results.
Respond with ONLY a JSON object matching this schema, no prose and no code fences:

{
  "location": "City, Region",
  "current": {"temp": 0, "feels_like": 0, "conditions": "short description", "icon": "01d"},
  "high": 0,
  "low": 0,
  "utc_offset": 0,
  "hourly": [
    {"label": "3 PM", "temp": 0, "conditions": "short description", "icon": "01d", "precip": 0}
  ]
}

Rules:
- Temperatures in degrees Fahrenheit as numbers
- icon is an OpenWeatherMap icon code: 01 clear, 02 partly cloudy, 03 or 04 cloudy, 09 drizzle, 10 rain, 11 thunderstorm, 13 snow, 50 fog, followed by d for day or n for night
- precip is the precipitation probability in percent
- utc_offset is the location's offset from UTC in hours
- Omit high and low if they are not in the results
- At most 6 hourly entries, starting from the next hour`

// WeatherExtractionPrompt formats the search text for extraction.
func WeatherExtractionPrompt(location, searchText string) string {
	return fmt.Sprintf("Location: %s\n\nSearch results:\n%s", location, searchText)
}

// WeatherSearchQuery is the web search issued for a location.
func WeatherSearchQuery(location string) string {
	return fmt.Sprintf("current weather and hourly forecast %s", location)
}
