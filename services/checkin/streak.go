package checkin

import "time"

const dateLayout = "2006-01-02"

// ComputeStreak walks the distinct check-in dates of a contact, ascending,
// and returns the consecutive-day streak ending at or before today.
//
// A date exactly one day after its predecessor extends the run; any larger
// gap resets it to 1. Dates after today are ignored. When the most recent
// date is today itself the streak continues from the stored prior streak if
// yesterday is present in the set or the prior streak was already positive,
// otherwise a fresh run starts at 1. Treating "prior streak > 0" as
// sufficient continuation mirrors the production behavior this engine
// replaced.
//
// Deterministic and side-effect-free. Input must be sorted ascending and
// de-duplicated; out-of-order input is a caller bug.
func ComputeStreak(dates []string, priorStreak int, today string) int {
	run := 0
	var prev time.Time
	hasPrev := false

	hasToday := false
	hasYesterday := false
	yesterday := ""
	if t, err := time.Parse(dateLayout, today); err == nil {
		yesterday = t.AddDate(0, 0, -1).Format(dateLayout)
	}

	for _, d := range dates {
		if d > today {
			continue
		}
		if d == today {
			hasToday = true
		}
		if d == yesterday {
			hasYesterday = true
		}

		cur, err := time.Parse(dateLayout, d)
		if err != nil {
			continue
		}

		if !hasPrev {
			run = 1
		} else {
			switch gap := int(cur.Sub(prev).Hours() / 24); gap {
			case 1:
				run++
			case 0:
				// duplicate day, already credited
			default:
				run = 1
			}
		}
		prev = cur
		hasPrev = true
	}

	if run == 0 {
		return 0
	}

	if hasToday {
		if hasYesterday || priorStreak > 0 {
			return priorStreak + 1
		}
		return 1
	}

	return run
}

// RecomputeStreak returns the new (current, longest) pair for a contact.
// The longest streak never decreases across recomputes.
func RecomputeStreak(dates []string, priorStreak, storedLongest int, today string) (int, int) {
	current := ComputeStreak(dates, priorStreak, today)
	longest := storedLongest
	if current > longest {
		longest = current
	}
	return current, longest
}
