package privacy

import "strings"

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// cityCenters maps "city-country" (lower-cased) to an approximate center.
var cityCenters = map[string]Coordinates{
	// North America
	"new york-usa":      {Lat: 40.7128, Lon: -74.0060},
	"nyc-usa":           {Lat: 40.7128, Lon: -74.0060},
	"los angeles-usa":   {Lat: 34.0522, Lon: -118.2437},
	"chicago-usa":       {Lat: 41.8781, Lon: -87.6298},
	"san francisco-usa": {Lat: 37.7749, Lon: -122.4194},
	"toronto-canada":    {Lat: 43.6532, Lon: -79.3832},

	// Europe
	"london-uk":      {Lat: 51.5074, Lon: -0.1278},
	"paris-france":   {Lat: 48.8566, Lon: 2.3522},
	"berlin-germany": {Lat: 52.5200, Lon: 13.4050},
	"madrid-spain":   {Lat: 40.4168, Lon: -3.7038},
	"rome-italy":     {Lat: 41.9028, Lon: 12.4964},

	// Asia
	"tokyo-japan":         {Lat: 35.6762, Lon: 139.6503},
	"beijing-china":       {Lat: 39.9042, Lon: 116.4074},
	"singapore-singapore": {Lat: 1.3521, Lon: 103.8198},
	"mumbai-india":        {Lat: 19.0760, Lon: 72.8777},
	"seoul-south korea":   {Lat: 37.5665, Lon: 126.9780},

	// South America
	"buenos aires-argentina": {Lat: -34.6037, Lon: -58.3816},
	"são paulo-brazil":       {Lat: -23.5505, Lon: -46.6333},
	"sao paulo-brazil":       {Lat: -23.5505, Lon: -46.6333},

	// Oceania
	"sydney-australia":    {Lat: -33.8688, Lon: 151.2093},
	"melbourne-australia": {Lat: -37.8136, Lon: 144.9631},
}

// CityCenter looks up the approximate center of (city, country). Both parts
// are required; matching ignores case and surrounding whitespace.
func CityCenter(city, country string) (Coordinates, bool) {
	city = strings.TrimSpace(city)
	country = strings.TrimSpace(country)
	if city == "" || country == "" {
		return Coordinates{}, false
	}
	c, ok := cityCenters[strings.ToLower(city+"-"+country)]
	return c, ok
}

// KnownCities lists the table as (city, country, center) triples, used by the
// development move simulator.
func KnownCities() []City {
	return []City{
		{Name: "New York", Country: "USA", Center: cityCenters["new york-usa"]},
		{Name: "London", Country: "UK", Center: cityCenters["london-uk"]},
		{Name: "Paris", Country: "France", Center: cityCenters["paris-france"]},
		{Name: "Tokyo", Country: "Japan", Center: cityCenters["tokyo-japan"]},
		{Name: "Sydney", Country: "Australia", Center: cityCenters["sydney-australia"]},
	}
}

type City struct {
	Name    string
	Country string
	Center  Coordinates
}
