package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
)

var (
	// capitalized phrase after a preposition: "near Los Angeles", "of Paris"
	locationAfterPreposition = regexp.MustCompile(
		`\b(?i:in|near|at|around|of|from|to|within|by|across|outside|inside)\s+([A-Z][\w'-]*(?:\s+[A-Z][\w'-]*)*)`)

	// capitalized phrase ending in a place-type word: "Yosemite National Park"
	locationWithSuffix = regexp.MustCompile(
		`\b((?:[A-Z][\w'-]*\s+)+(?:City|County|State|Province|Park|Lake|River|Mountains?|Valley|Bay|Island|Islands|Beach|Forest|Desert|Canyon|Coast|Peninsula|Region|Basin|Falls))\b`)

	coordinatePattern = regexp.MustCompile(
		`(-?\d{1,2}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)`)

	measurementPattern = regexp.MustCompile(
		`(?i)\b(\d+(?:\.\d+)?)\s*(kilometers|kilometres|kilometer|kilometre|km|miles|mile|mi|meters|metres|meter|metre|m)\b`)

	featureTypePattern *regexp.Regexp
)

// featureTypes maps accepted singular and plural nouns to the canonical singular.
var featureTypes = map[string]string{}

func init() {
	pairs := [][2]string{
		{"park", "parks"}, {"lake", "lakes"}, {"river", "rivers"},
		{"mountain", "mountains"}, {"city", "cities"}, {"town", "towns"},
		{"forest", "forests"}, {"beach", "beaches"}, {"road", "roads"},
		{"building", "buildings"}, {"hospital", "hospitals"}, {"school", "schools"},
		{"restaurant", "restaurants"}, {"airport", "airports"}, {"bridge", "bridges"},
		{"trail", "trails"}, {"museum", "museums"}, {"desert", "deserts"},
		{"island", "islands"}, {"volcano", "volcanoes"}, {"glacier", "glaciers"},
		{"reservoir", "reservoirs"}, {"dam", "dams"}, {"valley", "valleys"},
		{"canyon", "canyons"}, {"highway", "highways"}, {"station", "stations"},
		{"wetland", "wetlands"}, {"coastline", "coastlines"}, {"port", "ports"},
	}
	words := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		featureTypes[p[0]] = p[0]
		featureTypes[p[1]] = p[0]
		words = append(words, p[1], p[0])
	}
	// longest first so plurals win over their singular prefix
	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	featureTypePattern = regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}

var unitAliases = map[string]string{
	"km": "km", "kilometer": "km", "kilometers": "km", "kilometre": "km", "kilometres": "km",
	"mi": "miles", "mile": "miles", "miles": "miles",
	"m": "meters", "meter": "meters", "meters": "meters", "metre": "meters", "metres": "meters",
}

// toKilometers converts a value in a canonical unit to kilometres.
func toKilometers(value float64, unit string) float64 {
	switch unit {
	case "miles":
		return value * 1.609344
	case "meters":
		return value / 1000
	default:
		return value
	}
}

// extractEntities runs every pattern and drops later matches that overlap an
// earlier, higher-priority one. Priority: coordinates, measurements,
// locations, feature types.
func extractEntities(text string) []Entity {
	var entities []Entity
	overlaps := func(start, end int) bool {
		for _, e := range entities {
			if start < e.End && e.Start < end {
				return true
			}
		}
		return false
	}

	for _, m := range coordinatePattern.FindAllStringSubmatchIndex(text, -1) {
		lat, err1 := strconv.ParseFloat(text[m[2]:m[3]], 64)
		lon, err2 := strconv.ParseFloat(text[m[4]:m[5]], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		c := geo.Coordinates{Latitude: lat, Longitude: lon}
		if !c.Valid() {
			continue
		}
		entities = append(entities, Entity{
			Type:        EntityCoordinates,
			Text:        text[m[0]:m[1]],
			Start:       m[0],
			End:         m[1],
			Confidence:  coordinatesConfidence,
			Normalized:  c.String(),
			Coordinates: &c,
		})
	}

	for _, m := range measurementPattern.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		value, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		unit := unitAliases[strings.ToLower(text[m[4]:m[5]])]
		entities = append(entities, Entity{
			Type:       EntityMeasurement,
			Text:       text[m[0]:m[1]],
			Start:      m[0],
			End:        m[1],
			Confidence: measurementConfidence,
			Normalized: strconv.FormatFloat(value, 'f', -1, 64) + " " + unit,
			Measurement: &Measurement{
				Value:      value,
				Unit:       unit,
				Kilometers: toKilometers(value, unit),
			},
		})
	}

	addLocation := func(start, end int) {
		start = skipLeadingCommonWords(text, start, end)
		name := strings.TrimSpace(text[start:end])
		if name == "" || overlaps(start, start+len(name)) {
			return
		}
		entities = append(entities, Entity{
			Type:       EntityLocation,
			Text:       name,
			Start:      start,
			End:        start + len(name),
			Confidence: locationConfidence,
			Normalized: name,
		})
	}
	for _, m := range locationWithSuffix.FindAllStringSubmatchIndex(text, -1) {
		addLocation(m[2], m[3])
	}
	for _, m := range locationAfterPreposition.FindAllStringSubmatchIndex(text, -1) {
		addLocation(m[2], m[3])
	}

	for _, m := range featureTypePattern.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(m[2], m[3]) {
			continue
		}
		word := text[m[2]:m[3]]
		canonical := featureTypes[strings.ToLower(word)]
		entities = append(entities, Entity{
			Type:       EntityFeatureType,
			Text:       word,
			Start:      m[2],
			End:        m[3],
			Confidence: featureTypeConfidence,
			Normalized: canonical,
		})
	}

	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	return entities
}

// leadingCommonWords are capitalized sentence openers that are never part of
// a place name.
var leadingCommonWords = map[string]bool{
	"find": true, "show": true, "list": true, "compare": true, "describe": true,
	"analyze": true, "analyse": true, "what": true, "where": true, "which": true,
	"how": true, "tell": true, "the": true, "is": true, "are": true, "get": true,
	"search": true, "locate": true, "explain": true, "route": true, "and": true,
}

// skipLeadingCommonWords advances start past any leading opener words inside
// text[start:end].
func skipLeadingCommonWords(text string, start, end int) int {
	for start < end {
		rest := text[start:end]
		sp := strings.IndexAny(rest, " \t")
		if sp < 0 || !leadingCommonWords[strings.ToLower(rest[:sp])] {
			return start
		}
		start += sp
		for start < end && (text[start] == ' ' || text[start] == '\t') {
			start++
		}
	}
	return start
}
