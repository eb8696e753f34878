package weather

import "strings"

type coord struct {
	lat, lon float64
}

// capitals holds approximate coordinates of state capitals.
var capitals = map[string]coord{
	"AC": {-9.9754, -67.8249},
	"AL": {-9.6658, -35.7350},
	"AM": {-3.1190, -60.0217},
	"AP": {0.0349, -51.0694},
	"BA": {-12.9777, -38.5016},
	"CE": {-3.7319, -38.5267},
	"DF": {-15.7801, -47.9292},
	"ES": {-20.3155, -40.3128},
	"GO": {-16.6869, -49.2648},
	"MA": {-2.5307, -44.3068},
	"MG": {-19.9167, -43.9345},
	"MS": {-20.4697, -54.6201},
	"MT": {-15.6014, -56.0979},
	"PA": {-1.4558, -48.4902},
	"PB": {-7.1195, -34.8450},
	"PE": {-8.0476, -34.8770},
	"PI": {-5.0919, -42.8034},
	"PR": {-25.4284, -49.2733},
	"RJ": {-22.9068, -43.1729},
	"RN": {-5.7945, -35.2110},
	"RO": {-8.7612, -63.9004},
	"RR": {2.8235, -60.6758},
	"RS": {-30.0346, -51.2177},
	"SC": {-27.5954, -48.5480},
	"SE": {-10.9472, -37.0731},
	"SP": {-23.5505, -46.6333},
	"TO": {-10.1840, -48.3336},
}

// Coordinates returns the capital coordinates of a state.
func Coordinates(uf string) (lat, lon float64, ok bool) {
	c, ok := capitals[strings.ToUpper(strings.TrimSpace(uf))]
	return c.lat, c.lon, ok
}
