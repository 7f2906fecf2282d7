// Package astro computes solar geometry: azimuth/elevation for an instant
// and location, and the day's sunrise, sunset and solar noon.
//
// The equations are the standard low-precision solar position series
// (accurate to well under a degree, which is far below what the scoring
// model can distinguish). All angles are radians unless a name says degrees.
package astro

import (
	"math"
	"time"
)

const (
	rad = math.Pi / 180

	// earth obliquity
	obliquity = rad * 23.4397

	j2000 = 2451545.0
	j0    = 0.0009
)

// Position is the sun's location in the sky seen from a point.
// Azimuth is measured from south, positive towards west, matching the
// orientation convention used by the scorer.
type Position struct {
	AzimuthRad   float64
	ElevationRad float64
}

// SunTimes are the day's astronomical anchors for one location.
type SunTimes struct {
	Sunrise   time.Time
	SolarNoon time.Time
	Sunset    time.Time
}

// At returns the solar position for the instant and location.
// Pure and deterministic for given inputs.
func At(t time.Time, lat, lon float64) Position {
	lw := rad * -lon
	phi := rad * lat
	d := toDays(t)

	m := solarMeanAnomaly(d)
	l := eclipticLongitude(m)
	dec := declination(l)
	ra := rightAscension(l)

	h := siderealTime(d, lw) - ra

	elevation := math.Asin(math.Sin(phi)*math.Sin(dec) + math.Cos(phi)*math.Cos(dec)*math.Cos(h))
	azimuth := math.Atan2(math.Sin(h), math.Cos(h)*math.Sin(phi)-math.Tan(dec)*math.Cos(phi))

	return Position{AzimuthRad: azimuth, ElevationRad: elevation}
}

// Times returns sunrise, solar noon and sunset for the date of t at the
// location. Near the poles the hour-angle equation has no solution; the
// returned sunrise/sunset are then invalid (zero) and solar noon still holds.
func Times(t time.Time, lat, lon float64) SunTimes {
	lw := rad * -lon
	phi := rad * lat
	d := toDays(t)

	n := math.Round(d - j0 - lw/(2*math.Pi))
	ds := j0 + lw/(2*math.Pi) + n

	m := solarMeanAnomaly(ds)
	l := eclipticLongitude(m)
	dec := declination(l)

	jnoon := j2000 + ds + 0.0053*math.Sin(m) - 0.0069*math.Sin(2*l)

	out := SunTimes{SolarNoon: fromJulian(jnoon)}

	// h0 = -0.833 deg accounts for refraction and the solar disc radius
	const h0 = -0.833 * rad
	cosw := (math.Sin(h0) - math.Sin(phi)*math.Sin(dec)) / (math.Cos(phi) * math.Cos(dec))
	if cosw < -1 || cosw > 1 {
		return out // polar day or night
	}
	w := math.Acos(cosw)
	jset := j2000 + (j0 + (w+lw)/(2*math.Pi) + n) + 0.0053*math.Sin(m) - 0.0069*math.Sin(2*l)
	out.Sunset = fromJulian(jset)
	out.Sunrise = fromJulian(jnoon - (jset - jnoon))
	return out
}

// InGoldenHour reports whether t falls within the window around sunrise,
// sunset or solar noon, when light conditions change quickly.
func InGoldenHour(t time.Time, lat, lon float64, window time.Duration) bool {
	st := Times(t, lat, lon)
	anchors := []time.Time{st.SolarNoon}
	if !st.Sunrise.IsZero() {
		anchors = append(anchors, st.Sunrise)
	}
	if !st.Sunset.IsZero() {
		anchors = append(anchors, st.Sunset)
	}
	for _, a := range anchors {
		d := t.Sub(a)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

func toDays(t time.Time) float64 {
	return float64(t.UnixMilli())/86400000.0 - 0.5 + 2440588.0 - j2000
}

func fromJulian(j float64) time.Time {
	ms := (j + 0.5 - 2440588.0) * 86400000.0
	return time.UnixMilli(int64(math.Round(ms))).UTC()
}

func solarMeanAnomaly(d float64) float64 {
	return rad * (357.5291 + 0.98560028*d)
}

func eclipticLongitude(m float64) float64 {
	// equation of center
	c := rad * (1.9148*math.Sin(m) + 0.02*math.Sin(2*m) + 0.0003*math.Sin(3*m))
	// perihelion of the earth
	p := rad * 102.9372
	return m + c + p + math.Pi
}

func declination(l float64) float64 {
	return math.Asin(math.Sin(l) * math.Sin(obliquity))
}

func rightAscension(l float64) float64 {
	return math.Atan2(math.Sin(l)*math.Cos(obliquity), math.Cos(l))
}

func siderealTime(d, lw float64) float64 {
	return rad*(280.16+360.9856235*d) - lw
}
