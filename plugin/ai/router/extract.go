package router

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/plugin/ai/harvest"
)

// Action is the plan a rule extracted from the message.
type Action interface {
	isAction()
}

// RecordAction writes one harvest record.
type RecordAction struct {
	Count  int64
	Weight float64
	Date   string
}

// StatsAction summarizes one year.
type StatsAction struct {
	Year int
}

// ClarifyAction answers with a prompt and performs no write.
type ClarifyAction struct {
	Message string
}

func (RecordAction) isAction()  {}
func (StatsAction) isAction()   {}
func (ClarifyAction) isAction() {}

var (
	countPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:ลูก|fruits?\b|pcs\b|pieces?\b)`)
	weightPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:กก\.?|กิโล(?:กรัม)?|kgs?\b|kilo(?:gram)?s?\b)`)
	isoDate       = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	slashDate     = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	yearPattern   = regexp.MustCompile(`(20\d{2})`)
)

// ExtractRecord pulls count, weight and date out of a record message.
// A missing or unusable count or weight yields a ClarifyAction.
func ExtractRecord(input string, now time.Time) (Action, error) {
	lower := normalize(input)

	count, ok := extractCount(lower)
	if !ok {
		return ClarifyAction{Message: ClarificationMessage}, nil
	}
	weight, ok := extractNumber(weightPattern, lower)
	if !ok || weight <= 0 {
		return ClarifyAction{Message: ClarificationMessage}, nil
	}

	date, err := extractDate(lower, now)
	if err != nil {
		return nil, err
	}
	return RecordAction{Count: count, Weight: weight, Date: date}, nil
}

// ExtractStats reads an optional year, defaulting to the current one.
func ExtractStats(input string, now time.Time) (Action, error) {
	if m := yearPattern.FindStringSubmatch(input); m != nil {
		year, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid year %q", m[1])
		}
		return StatsAction{Year: year}, nil
	}
	return StatsAction{Year: now.Year()}, nil
}

func extractCount(lower string) (int64, bool) {
	value, ok := extractNumber(countPattern, lower)
	if !ok || value <= 0 || value != math.Trunc(value) || value > math.MaxInt32 {
		return 0, false
	}
	return int64(value), true
}

func extractNumber(pattern *regexp.Regexp, lower string) (float64, bool) {
	m := pattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// extractDate tries ISO, then day/month/year. The today keyword and a
// message without a date both resolve to today.
func extractDate(lower string, now time.Time) (string, error) {
	if m := isoDate.FindStringSubmatch(lower); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := slashDate.FindStringSubmatch(lower); m != nil {
		return buildDate(m[3], m[2], m[1])
	}
	return now.Format(harvest.DateLayout), nil
}

func buildDate(year, month, day string) (string, error) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", errors.Errorf("invalid calendar date %s-%s-%s", year, month, day)
	}
	return t.Format(harvest.DateLayout), nil
}
