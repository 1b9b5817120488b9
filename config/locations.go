package config

type point struct {
	lat, lon float64
}

// knownLocations maps lower-case city names to search centres.
var knownLocations = map[string]point{
	"madrid":    {40.4168, -3.7038},
	"barcelona": {41.3851, 2.1734},
	"valencia":  {39.4699, -0.3763},
	"sevilla":   {37.3891, -5.9845},
	"bilbao":    {43.2630, -2.9350},
	"malaga":    {36.7213, -4.4214},
	"zaragoza":  {41.6488, -0.8891},
}
