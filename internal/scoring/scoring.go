// Package scoring holds the fixed point table for visitor actions and the
// score to temperature classification.
package scoring

import (
	"math"

	"card-engagement-api/internal/models"
)

const (
	// VisitPoints is awarded once per repeat visit.
	VisitPoints = 5

	// WarmThreshold is the lowest warm score.
	WarmThreshold = 21
	// HotThreshold is the lowest hot score.
	HotThreshold = 51
)

var pointTable = map[models.ActionKind]int{
	models.ActionNFCScan:       5,
	models.ActionContactAdded:  10,
	models.ActionWhatsAppClick: 15,
	models.ActionPhoneClick:    20,
	models.ActionEmailClick:    10,
	models.ActionSMSClick:      5,
	models.ActionWebsiteClick:  5,
	models.ActionSocialClick:   3,
	models.ActionLocationClick: 5,
	models.ActionWalletAdded:   25,
	models.ActionVisit:         VisitPoints,
	models.ActionTimeOnCard:    5,
	models.ActionSharedContact: 10,
}

// PointsFor returns the point value of an action kind, or 0 for unknown kinds.
func PointsFor(kind models.ActionKind) int {
	return pointTable[kind]
}

// IsKnown reports whether kind appears in the point table.
func IsKnown(kind models.ActionKind) bool {
	_, ok := pointTable[kind]
	return ok
}

// Kinds returns every scored action kind.
func Kinds() []models.ActionKind {
	kinds := make([]models.ActionKind, 0, len(pointTable))
	for k := range pointTable {
		kinds = append(kinds, k)
	}
	return kinds
}

// Classify maps a score to its temperature. Bands are inclusive on their
// lower bound: <= 20 cold, 21..50 warm, >= 51 hot.
func Classify(score int) models.Temperature {
	switch {
	case score >= HotThreshold:
		return models.TemperatureHot
	case score >= WarmThreshold:
		return models.TemperatureWarm
	default:
		return models.TemperatureCold
	}
}

// ScoreRange returns the inclusive score bounds of a temperature band.
func ScoreRange(t models.Temperature) (int, int) {
	switch t {
	case models.TemperatureHot:
		return HotThreshold, math.MaxInt32
	case models.TemperatureWarm:
		return WarmThreshold, HotThreshold - 1
	default:
		return math.MinInt32, WarmThreshold - 1
	}
}

// ParseTemperature converts a string into a Temperature.
func ParseTemperature(s string) (models.Temperature, bool) {
	switch t := models.Temperature(s); t {
	case models.TemperatureCold, models.TemperatureWarm, models.TemperatureHot:
		return t, true
	}
	return "", false
}
