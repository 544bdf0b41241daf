package tools

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"QueryChain/internal/value"
)

// WeatherName is the registry name of the weather tool.
const WeatherName = "weather"

// CelsiusUnit labels temperatures produced by the weather tool.
const CelsiusUnit = "°C"

// CityTable is an immutable city → temperature (°C) table. Keys are
// lower-case city names.
type CityTable struct {
	temps map[string]float64
}

// NewCityTable copies temps into a CityTable, normalising keys.
func NewCityTable(temps map[string]float64) CityTable {
	table := CityTable{temps: make(map[string]float64, len(temps))}
	for city, temp := range temps {
		key := NormalizeCity(city)
		if key == "" {
			continue
		}
		table.temps[key] = temp
	}
	return table
}

// DefaultCityTable returns the built-in mock weather data.
func DefaultCityTable() CityTable {
	return NewCityTable(map[string]float64{
		"paris":         18,
		"london":        17,
		"dhaka":         31,
		"amsterdam":     19.5,
		"tokyo":         22,
		"new york":      20,
		"berlin":        16,
		"madrid":        24,
		"rome":          23,
		"sydney":        21,
		"mumbai":        30,
		"chicago":       15,
		"toronto":       14,
		"dubai":         35,
		"singapore":     29,
		"san francisco": 17.5,
	})
}

// NormalizeCity lower-cases and collapses whitespace.
func NormalizeCity(city string) string {
	return strings.Join(strings.Fields(strings.ToLower(city)), " ")
}

// Temperature returns the temperature recorded for city.
func (t CityTable) Temperature(city string) (float64, bool) {
	temp, ok := t.temps[NormalizeCity(city)]
	return temp, ok
}

// Contains reports whether the table knows city.
func (t CityTable) Contains(city string) bool {
	_, ok := t.Temperature(city)
	return ok
}

// Cities lists known cities in sorted order.
func (t CityTable) Cities() []string {
	cities := make([]string, 0, len(t.temps))
	for city := range t.temps {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	return cities
}

// Len returns the number of cities.
func (t CityTable) Len() int { return len(t.temps) }

// Weather answers get_weather(city) from a CityTable.
type Weather struct {
	*Tool
	cities CityTable
}

// NewWeather builds the weather tool over cities.
func NewWeather(cities CityTable) *Weather {
	w := &Weather{cities: cities}
	w.Tool = NewTool(WeatherName, map[string]Operation{
		"get_weather": w.getWeather,
	})
	return w
}

func (w *Weather) getWeather(_ context.Context, args Args) (value.Value, error) {
	city, err := args.Text("city")
	if err != nil {
		return value.Value{}, err
	}
	temp, ok := w.cities.Temperature(city)
	if !ok {
		return value.Value{}, Fail(KindNotFound, "city not found: %s", city)
	}
	return value.QuantityWithDisplay(temp, CelsiusUnit, FormatCelsius(temp)), nil
}

// FormatCelsius renders a temperature the way the weather tool reports it:
// integral readings without a fractional part, e.g. "18°C" or "19.5°C".
func FormatCelsius(temp float64) string {
	if temp == math.Trunc(temp) && math.Abs(temp) < 1e15 {
		return strconv.FormatFloat(temp, 'f', 0, 64) + CelsiusUnit
	}
	return value.FormatNumber(temp) + CelsiusUnit
}
