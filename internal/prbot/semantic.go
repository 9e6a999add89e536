package prbot

import (
	"fmt"
	"regexp"
	"strings"
)

// Category represents the type of changes in a PR
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryArchitecture Category = "architecture"
	CategoryMigrations   Category = "migrations"
	CategoryRoutine      Category = "routine"
)

var (
	securityPatterns = compile(
		`(?i)auth`,
		`(?i)password`,
		`(?i)credential`,
		`(?i)secret`,
		`(?i)token`,
		`(?i)encrypt`,
		`(?i)decrypt`,
		`(?i)permission`,
		`(?i)bcrypt`,
		`(?i)jwt`,
		`(?i)oauth`,
	)

	architecturePatterns = compile(
		`go\.mod`,
		`go\.sum`,
		`package\.json`,
		`requirements\.txt`,
		`pyproject\.toml`,
		`(?i)api/`,
		`(?i)interface\s+\w+`,
	)

	migrationPatterns = compile(
		`migrations/`,
		`(?i)CREATE\s+TABLE`,
		`(?i)ALTER\s+TABLE`,
		`(?i)DROP\s+TABLE`,
		`(?m)\.sql$`,
	)
)

func compile(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// AnalyzeDiff categorizes a diff by its content
func AnalyzeDiff(diff string) Category {
	// Check in order of priority
	if matchesAny(diff, securityPatterns) {
		return CategorySecurity
	}
	if matchesAny(diff, migrationPatterns) {
		return CategoryMigrations
	}
	if matchesAny(diff, architecturePatterns) {
		return CategoryArchitecture
	}
	return CategoryRoutine
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// GetLabels returns labels to apply based on category
func GetLabels(category Category) []string {
	switch category {
	case CategorySecurity:
		return []string{"agent", "needs-human-review", "security"}
	case CategoryArchitecture:
		return []string{"agent", "needs-human-review", "architecture"}
	case CategoryMigrations:
		return []string{"agent", "needs-human-review", "database"}
	default:
		return []string{"agent"}
	}
}

// ChangedFiles lists the files a unified diff touches, in order
func ChangedFiles(diff string) []string {
	var files []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++ ") {
			file := strings.TrimPrefix(strings.TrimPrefix(line, "+++ "), "b/")
			if file != "/dev/null" {
				files = append(files, file)
			}
		}
	}
	return files
}

// ExtractChangeSummary attempts to summarize changes from diff
func ExtractChangeSummary(diff string) string {
	files := ChangedFiles(diff)

	var added, removed int
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}

	if len(files) == 0 {
		return "Changes made"
	}
	return fmt.Sprintf("Modified %s (+%d/-%d)", strings.Join(files[:min(3, len(files))], ", "), added, removed)
}
