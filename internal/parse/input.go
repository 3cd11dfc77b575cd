package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"motion-live-client/internal/model"
)

var plainSecondsRe = regexp.MustCompile(`^\d+$`)

var choiceAliases = map[string]model.Choice{
	"y":       model.ChoiceYes,
	"yes":     model.ChoiceYes,
	"aye":     model.ChoiceYes,
	"n":       model.ChoiceNo,
	"no":      model.ChoiceNo,
	"nay":     model.ChoiceNo,
	"a":       model.ChoiceAbstain,
	"abs":     model.ChoiceAbstain,
	"abstain": model.ChoiceAbstain,
}

// Choice maps a typed answer onto a ballot option.
func Choice(raw string) (model.Choice, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if c, ok := choiceAliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unrecognized choice %q", raw)
}

// Timer is a parsed timer command. Extend adds Seconds to the remaining
// time; otherwise Seconds replaces the timer.
type Timer struct {
	Seconds int
	Extend  bool
}

// ParseTimer reads "90" or "1m30s" as a new timer and "+3" or "+30s" as an
// extension. A zero timer clears auto-close; a zero extension is refused.
func ParseTimer(raw string) (Timer, error) {
	s := strings.TrimSpace(raw)
	var t Timer
	if strings.HasPrefix(s, "+") {
		t.Extend = true
		s = strings.TrimSpace(s[1:])
	}
	if s == "" {
		return Timer{}, fmt.Errorf("empty timer value %q", raw)
	}

	seconds, err := parseSeconds(s)
	if err != nil {
		return Timer{}, fmt.Errorf("invalid timer value %q: %w", raw, err)
	}
	if t.Extend && seconds == 0 {
		return Timer{}, fmt.Errorf("extension must be positive: %q", raw)
	}
	t.Seconds = seconds
	return t, nil
}

func parseSeconds(s string) (int, error) {
	if plainSecondsRe.MatchString(s) {
		return strconv.Atoi(s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("duration %s is not whole seconds", d)
	}
	return int(d / time.Second), nil
}
