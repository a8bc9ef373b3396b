package router

import (
	"regexp"
	"strings"
	"time"
)

// Rule is one entry of the ordered rule list. Match and Extract are pure;
// the side effect happens in Service.execute.
type Rule struct {
	Intent  Intent
	Match   func(lower string) bool
	Extract func(input string, now time.Time) (Action, error)
}

// Thai has no word boundaries, so its triggers match anywhere. English
// triggers are whole words and need a harvest noun or a quantity.
var (
	statsTrigger   = regexp.MustCompile(`สรุป|กราฟ|รายงาน|ยอด`)
	statsTriggerEn = regexp.MustCompile(`\b(summary|chart|report|stats|statistics|totals?)\b`)
	harvestNounEn  = regexp.MustCompile(`\b(harvests?|durians?|yields?)\b`)

	recordVerb       = regexp.MustCompile(`บันทึก|เก็บ|ได้`)
	recordUnit       = regexp.MustCompile(`ลูก|กก\.?|กิโล`)
	recordVerbEn     = regexp.MustCompile(`\b(record|recorded|harvest|harvested|picked)\b`)
	recordQuantityEn = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:fruits?|kgs?|kilos?|kilograms?)\b`)
)

// DefaultRules returns the rules in priority order. Stats comes first, so a
// message that mentions both a summary and a harvest is a stats request.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent:  IntentHarvestStats,
			Match:   matchStats,
			Extract: ExtractStats,
		},
		{
			Intent:  IntentRecordHarvest,
			Match:   matchRecord,
			Extract: ExtractRecord,
		},
	}
}

func matchStats(lower string) bool {
	if statsTrigger.MatchString(lower) {
		return true
	}
	return statsTriggerEn.MatchString(lower) && harvestNounEn.MatchString(lower)
}

// matchRecord needs a harvest verb with a unit, or an explicit count and
// weight such as "120 ลูก 350 กิโล".
func matchRecord(lower string) bool {
	if recordVerb.MatchString(lower) && recordUnit.MatchString(lower) {
		return true
	}
	if recordVerbEn.MatchString(lower) && recordQuantityEn.MatchString(lower) {
		return true
	}
	return countPattern.MatchString(lower) && weightPattern.MatchString(lower)
}

func normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
