// Package foodtype decides whether a product is wet or dry food.
package foodtype

import (
	"strings"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// Signal names the evidence a classification was based on.
type Signal string

const (
	SignalCategory Signal = "category"
	SignalKeyword  Signal = "keyword"
	SignalMoisture Signal = "moisture"
	SignalDefault  Signal = "default"
	// SignalProvided marks a food type given by the caller instead of inferred.
	SignalProvided Signal = "provided"
)

// WetMoistureThreshold is the moisture percentage above which food counts as wet.
const WetMoistureThreshold = 50.0

// Result is a food type together with the signal that decided it.
type Result struct {
	Type   nutrition.FoodType `json:"food_type"`
	Signal Signal             `json:"signal"`
}

var (
	wetTagMarkers = tokenSet("wet", "humid", "humide", "humides", "nassfutter", "natvoer", "umido")
	dryTagMarkers = tokenSet("dry", "seche", "seches", "trockenfutter", "droogvoer", "secco")

	wetKeywords = tokenSet(
		"canned", "can", "cans", "tin", "wet", "pate", "gravy", "mousse", "terrine",
		"loaf", "pouch", "pouches", "jelly", "gelee", "chunks", "stew", "broth", "sauce",
		"nassfutter", "natvoer", "schale",
	)
	dryKeywords = tokenSet(
		"kibble", "kibbles", "dry", "biscuit", "biscuits", "crunch", "crunchy",
		"croquettes", "trockenfutter", "brokjes", "droogvoer",
	)
)

func tokenSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func containsAny(tokens []string, set map[string]struct{}) bool {
	for _, tok := range tokens {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

// ProductText joins product name and brand for keyword matching.
func ProductText(name, brand string) string {
	return strings.TrimSpace(name + " " + brand)
}

// Classify infers the food type. Category tags are checked first, then
// keywords in the product text, then the moisture value. Without any signal
// the result is wet, which has the broader moisture expectations.
func Classify(tags []string, productText string, moisture *float64) Result {
	var tagTokens []string
	for _, tag := range tags {
		tagTokens = append(tagTokens, Fold(tag)...)
	}
	if containsAny(tagTokens, wetTagMarkers) {
		return Result{Type: nutrition.FoodTypeWet, Signal: SignalCategory}
	}
	if containsAny(tagTokens, dryTagMarkers) {
		return Result{Type: nutrition.FoodTypeDry, Signal: SignalCategory}
	}

	words := Fold(productText)
	if containsAny(words, wetKeywords) {
		return Result{Type: nutrition.FoodTypeWet, Signal: SignalKeyword}
	}
	if containsAny(words, dryKeywords) {
		return Result{Type: nutrition.FoodTypeDry, Signal: SignalKeyword}
	}

	if moisture != nil {
		if *moisture > WetMoistureThreshold {
			return Result{Type: nutrition.FoodTypeWet, Signal: SignalMoisture}
		}
		return Result{Type: nutrition.FoodTypeDry, Signal: SignalMoisture}
	}

	return Result{Type: nutrition.FoodTypeWet, Signal: SignalDefault}
}
