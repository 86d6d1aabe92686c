package label

import (
	"regexp"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// Pattern is one compiled label expression. Capture group 1 holds the number.
type Pattern struct {
	Locale string
	Expr   *regexp.Regexp
}

const (
	qualifier = `(?:\s*\(?\s*(?:min|max)\.?\s*\)?)?`
	separator = `[\s:.]*`
	number    = `(\d+[.,]?\d*)\s*%`
)

// keyword builds a pattern for "<keyword> [(min|max)] [:...] <number>%".
func keyword(locale, kw string) Pattern {
	return Pattern{Locale: locale, Expr: regexp.MustCompile(kw + qualifier + separator + number)}
}

// loose builds a pattern from a raw expression that must end in the number group.
func loose(locale, expr string) Pattern {
	return Pattern{Locale: locale, Expr: regexp.MustCompile(expr)}
}

// patternTable lists expressions per nutrient. Within a nutrient the order is
// the match priority; lists never share keywords across nutrients.
var patternTable = [nutrition.NutrientCount][]Pattern{
	nutrition.Protein: {
		keyword("nl", `(?:ruw\s+)?eiwit(?:gehalte)?`),
		keyword("nl", `\bproteine`),
		keyword("it", `protein[ae](?:\s+grezz[ae])?`),
		keyword("de", `rohprotein`),
		keyword("de", `eiwei(?:ß|ss)`),
		keyword("fr", `prot[ée]ines?(?:\s+brutes?)?`),
		keyword("es", `prote[íi]nas?(?:\s+brutas?)?`),
		keyword("en", `(?:crude\s+)?protein`),
		loose("en", `protein.*?min.*?`+number),
		keyword("en", `\bprot`),
	},
	nutrition.Fat: {
		keyword("nl", `(?:ruw\s+)?vetgehalte`),
		keyword("nl", `(?:ruw\s+)?\bvet`),
		keyword("it", `(?:tenore\s+in\s+)?materia\s+grassa`),
		keyword("it", `(?:oli\s+e\s+)?grass[ie](?:\s+grezz[ie])?`),
		keyword("de", `fettgehalt`),
		keyword("de", `rohfett`),
		keyword("de", `\bfett`),
		keyword("fr", `mati[èe]res?\s+grasses(?:\s+brutes)?`),
		keyword("es", `(?:aceites\s+y\s+)?grasas?(?:\s+brut[ao]s?)?`),
		keyword("en", `(?:crude\s+)?\bfat(?:\s+content)?`),
		loose("en", `\bfat.*?min.*?`+number),
	},
	nutrition.Fiber: {
		keyword("nl", `(?:ruwe\s+)?vezel(?:stof)?(?:s|gehalte)?`),
		keyword("nl", `(?:ruwe\s+)?celstof`),
		keyword("en", `(?:crude\s+)?fib(?:er|re)s?`),
		keyword("it", `fibr[ae](?:\s+(?:grezz[ae]|brut[ao]))?`),
		keyword("de", `rohfaser`),
		keyword("de", `faser`),
		keyword("fr", `cellulose(?:\s+brute)?`),
		keyword("fr", `fibres?\s+brutes?`),
		loose("en", `fib(?:er|re).*?max.*?`+number),
	},
	nutrition.Moisture: {
		keyword("nl", `vocht(?:gehalte)?`),
		keyword("it", `umidit[àa]`),
		keyword("de", `feuchtegehalt`),
		keyword("de", `feucht(?:e|igkeit)?`),
		keyword("de", `wasser`),
		keyword("fr", `humidit[ée]`),
		keyword("es", `humedad`),
		keyword("en", `moisture`),
		keyword("en", `\bwater`),
	},
	nutrition.Ash: {
		keyword("nl", `(?:ruwe\s+)?\bas`),
		keyword("it", `cener[ei](?:\s+grezz[ei])?`),
		keyword("de", `rohasche`),
		keyword("de", `asche`),
		keyword("de", `mineralstoffe`),
		keyword("fr", `cendres?(?:\s+brutes?)?`),
		keyword("fr", `mati[èe]res?\s+min[ée]rales`),
		keyword("es", `cenizas?(?:\s+brutas?)?`),
		keyword("es", `materia\s+inorg[áa]nica`),
		keyword("en", `(?:crude\s+)?\bash`),
		keyword("en", `\bminerals?`),
	},
}

// Patterns returns the ordered expressions tried for n.
func Patterns(n nutrition.Nutrient) []Pattern {
	if !n.Valid() {
		return nil
	}
	return patternTable[n]
}
