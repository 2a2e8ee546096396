// Package datectx converts between track dates and the
// "YYYY/MM month-name/DD" directory fragments that organize the library.
package datectx

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidContext is returned for strings that are not a well-formed date context
var ErrInvalidContext = errors.New("invalid date context")

// Calendar maps month numbers (1-12) to the lowercase names used in paths
type Calendar map[int]string

// DefaultCalendar is the month naming used throughout the library
var DefaultCalendar = Calendar{
	1:  "january",
	2:  "february",
	3:  "march",
	4:  "april",
	5:  "may",
	6:  "june",
	7:  "july",
	8:  "august",
	9:  "september",
	10: "october",
	11: "november",
	12: "december",
}

// Context is a date context found inside a path. Index is the position of the
// year segment in strings.Split(path, "/").
type Context struct {
	Value string
	Index int
}

// BuildPath returns the date context for an ISO date using DefaultCalendar
func BuildPath(date string) (string, error) {
	return DefaultCalendar.BuildPath(date)
}

// Extract finds the first date context in path using DefaultCalendar
func Extract(p string) (Context, bool) {
	return DefaultCalendar.ExtractFrom(p, 0)
}

// ExtractFrom finds the first date context whose year segment is at or after minIndex
func ExtractFrom(p string, minIndex int) (Context, bool) {
	return DefaultCalendar.ExtractFrom(p, minIndex)
}

// BuildPath turns "2024-01-02" into "2024/01 january/02"
func (c Calendar) BuildPath(date string) (string, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("%w: date %q: %v", ErrInvalidContext, date, err)
	}
	name, ok := c[int(t.Month())]
	if !ok {
		return "", fmt.Errorf("%w: no calendar name for month %d", ErrInvalidContext, t.Month())
	}
	return fmt.Sprintf("%04d/%02d %s/%02d", t.Year(), int(t.Month()), name, t.Day()), nil
}

// ExtractFrom scans the segments of p for a 4-digit year followed by a
// "MM name" segment whose number and name agree in the calendar, followed by
// a valid 2-digit day. Paths that merely contain a 4-digit number, or whose
// month label disagrees with its number, do not match.
func (c Calendar) ExtractFrom(p string, minIndex int) (Context, bool) {
	segments := strings.Split(p, "/")
	for i := max(minIndex, 0); i+2 < len(segments); i++ {
		year, ok := parseDigits(segments[i], 4)
		if !ok {
			continue
		}
		month, ok := c.parseMonth(segments[i+1])
		if !ok {
			continue
		}
		day, ok := parseDigits(segments[i+2], 2)
		if !ok || !validDay(year, month, day) {
			continue
		}
		return Context{
			Value: segments[i] + "/" + segments[i+1] + "/" + segments[i+2],
			Index: i,
		}, true
	}
	return Context{}, false
}

func (c Calendar) parseMonth(segment string) (int, bool) {
	words := strings.Fields(segment)
	if len(words) != 2 {
		return 0, false
	}
	month, ok := parseDigits(words[0], 2)
	if !ok {
		return 0, false
	}
	name, ok := c[month]
	if !ok || name != words[1] {
		return 0, false
	}
	return month, true
}

// Parse converts a date context into its UTC midnight time. The month name
// is ignored.
func Parse(context string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(context), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidContext, context)
	}
	year, ok := parseDigits(parts[0], 4)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: bad year in %q", ErrInvalidContext, context)
	}
	words := strings.Fields(parts[1])
	if len(words) == 0 {
		return time.Time{}, fmt.Errorf("%w: missing month in %q", ErrInvalidContext, context)
	}
	month, err := strconv.Atoi(words[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad month in %q", ErrInvalidContext, context)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad day in %q", ErrInvalidContext, context)
	}
	if !validDay(year, month, day) {
		return time.Time{}, fmt.Errorf("%w: no such date %q", ErrInvalidContext, context)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// ToTimestamp converts a date context into a Unix timestamp at UTC midnight
func ToTimestamp(context string) (int64, error) {
	t, err := Parse(context)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// Rebase replaces everything in p before the context with root
func Rebase(p, root string, c Context) string {
	segments := strings.Split(p, "/")
	if c.Index < 0 || c.Index >= len(segments) {
		return p
	}
	return path.Join(root, strings.Join(segments[c.Index:], "/"))
}

// RelativeRoot turns a path inside a date context into the form rsync's
// --relative mode needs to recreate the context remotely:
//
//	/data/out/2022/04 april/24/track.mp3 -> /data/out/./2022/04 april/24
//	2022/04 april/24/track.mp3           -> ./2022/04 april/24
func RelativeRoot(p string) (string, error) {
	c, ok := Extract(p)
	if !ok {
		return "", fmt.Errorf("%w: no date context in %q", ErrInvalidContext, p)
	}
	if c.Index == 0 {
		// relative path starting at the context: keep it relative
		return "./" + c.Value, nil
	}
	segments := strings.Split(p, "/")
	return strings.Join(segments[:c.Index], "/") + "/./" + c.Value, nil
}

func parseDigits(s string, width int) (int, bool) {
	if len(s) != width {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func validDay(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && int(t.Month()) == month
}
