package inbox

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Message is one notification recovered from an exported SMS log
type Message struct {
	Date   time.Time
	Sender string
	Body   string
}

var (
	// Header line: "Dec 26 10:42 VM-HDFCBK"
	headerPattern = regexp.MustCompile(`^(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(\d{1,2})\s+(\d{1,2}):(\d{2})\s+(\S+)\s*$`)

	// Lines to skip
	skipPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*$`),
		regexp.MustCompile(`^-{3,}`),
		regexp.MustCompile(`(?i)^exported\s+by\b`),
	}

	monthMap = map[string]time.Month{
		"Jan": time.January,
		"Feb": time.February,
		"Mar": time.March,
		"Apr": time.April,
		"May": time.May,
		"Jun": time.June,
		"Jul": time.July,
		"Aug": time.August,
		"Sep": time.September,
		"Oct": time.October,
		"Nov": time.November,
		"Dec": time.December,
	}
)

// Parse splits an SMS export into messages. A header line starts a
// message and every following line up to the next header is its body.
// Headers carry no year, so year and loc place them in time. Messages
// with an empty body are dropped.
func Parse(text string, year int, loc *time.Location) []Message {
	lines := strings.Split(text, "\n")
	var messages []Message
	var current *Message
	var bodyLines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.Join(bodyLines, " ")
		if current.Body != "" {
			messages = append(messages, *current)
		}
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if shouldSkipLine(line) {
			continue
		}

		if match := headerPattern.FindStringSubmatch(line); match != nil {
			flush()
			current = parseHeader(match, year, loc)
			bodyLines = nil
		} else if current != nil {
			bodyLines = append(bodyLines, line)
		}
	}
	flush()

	return messages
}

// ParseWithAutoYear looks for a dd-mm-yyyy date in the export to pick the
// year, falling back to the current year
func ParseWithAutoYear(text string, loc *time.Location) []Message {
	yearPattern := regexp.MustCompile(`\d{2}-\d{2}-(\d{4})`)
	if match := yearPattern.FindStringSubmatch(text); match != nil {
		if year, err := strconv.Atoi(match[1]); err == nil {
			return Parse(text, year, loc)
		}
	}
	return Parse(text, time.Now().In(loc).Year(), loc)
}

func shouldSkipLine(line string) bool {
	for _, pattern := range skipPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

func parseHeader(match []string, year int, loc *time.Location) *Message {
	day, _ := strconv.Atoi(match[2])
	hour, _ := strconv.Atoi(match[3])
	minute, _ := strconv.Atoi(match[4])
	return &Message{
		Date:   time.Date(year, monthMap[match[1]], day, hour, minute, 0, 0, loc),
		Sender: match[5],
	}
}
