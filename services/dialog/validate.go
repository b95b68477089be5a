package dialog

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"schedulebot/models"
)

// inputError is a rejection whose text is shown to the user as is.
type inputError string

func (e inputError) Error() string { return string(e) }

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validateName(text string) (string, error) {
	n := utf8.RuneCountInString(text)
	if n < 3 || n > 60 {
		return "", inputError(msgBadName)
	}
	return text, nil
}

func validateEmail(text string) (string, error) {
	if !emailPattern.MatchString(text) {
		return "", inputError(msgBadEmail)
	}
	return strings.ToLower(text), nil
}

func validateAddress(text string) (string, error) {
	if text == "" || utf8.RuneCountInString(text) > 120 {
		return "", inputError(msgBadAddress)
	}
	return text, nil
}

func validateDescription(text string) (string, error) {
	if text == "" || utf8.RuneCountInString(text) > 300 {
		return "", inputError(msgBadDescription)
	}
	return text, nil
}

var errBadDate = inputError(msgBadDate)

// parseDateRequest reads "DD-MM-YYYY [morning|afternoon]" in loc.
func parseDateRequest(text string, loc *time.Location) (time.Time, models.Period, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return time.Time{}, models.PeriodAny, errBadDate
	}
	raw := strings.NewReplacer("/", "-", ".", "-").Replace(fields[0])
	date, err := time.ParseInLocation("2-1-2006", raw, loc)
	if err != nil {
		return time.Time{}, models.PeriodAny, errBadDate
	}
	period := models.PeriodAny
	if len(fields) == 2 {
		p, ok := models.ParsePeriod(fields[1])
		if !ok || p == models.PeriodAny {
			return time.Time{}, models.PeriodAny, errBadDate
		}
		period = p
	}
	return date, period, nil
}

// checkHorizon accepts dates in [today, today+horizonDays].
func checkHorizon(date, today time.Time, horizonDays int, prompts Prompts) error {
	if date.Before(today) {
		return inputError(msgPastDate)
	}
	if date.After(today.AddDate(0, 0, horizonDays)) {
		return inputError(prompts.FarDate())
	}
	return nil
}
