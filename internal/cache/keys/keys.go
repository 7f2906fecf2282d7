// Package keys derives stable cache keys for scores, weather, places,
// solar geometry and shadow masks.
package keys

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcloughlin/geohash"
)

// geohash precision 6 is ~1.2km x 0.6km, coarse enough that nearby
// requests share a key and fine enough to keep distinct neighborhoods apart
const coordPrecision = 6

// keys longer than this are condensed to namespace + hash
const maxKeyLen = 160

const hourLayout = "2006010215"

// Scores is the aggregate result key for one window request. The UTC offset
// is part of the key: the same instant in different zones selects different
// mask slots, so the aggregates must not share an entry.
func Scores(mode string, hours int, ref time.Time) string {
	_, off := ref.Zone()
	return build("scores", fmt.Sprintf("%s:%d:%s:%+d", sanitize(mode), hours, hourBucket(ref), off/60))
}

// Weather keys the hourly forecast for the reference location.
func Weather(lat, lon float64, hours int, ref time.Time) string {
	return build("weather", fmt.Sprintf("%s:%d:%s", cell(lat, lon), hours, hourBucket(ref)))
}

// Places keys the point-of-interest directory snapshot.
func Places() string {
	return "places:all"
}

// Astro keys solar geometry per point and hour.
func Astro(lat, lon float64, hour time.Time) string {
	return build("astro", cell(lat, lon)+":"+hourBucket(hour))
}

// Mask keys one decoded shadow mask.
func Mask(tileID string, month int, slot string) string {
	return build("mask", fmt.Sprintf("%s:%02d:%s", sanitize(tileID), month, sanitize(slot)))
}

// TileMetadata keys the tile directory document.
func TileMetadata() string {
	return "tiles:metadata"
}

func hourBucket(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(hourLayout)
}

func cell(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, coordPrecision)
}

func build(ns, rest string) string {
	k := ns + ":" + rest
	if len(k) <= maxKeyLen {
		return k
	}
	// condense, never truncate: truncation could collide
	return fmt.Sprintf("%s:h=%016x", ns, xxhash.Sum64String(k))
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case isASCIIWhitespace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isASCIIWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
