package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// RatingBaseClass is the class shared by every rating element.
const RatingBaseClass = "star-rating"

var availabilityPattern = regexp.MustCompile(`\(\s*(\d+)\s+available\)`)

var ratings = map[string]string{
	"One":   "1/5",
	"Two":   "2/5",
	"Three": "3/5",
	"Four":  "4/5",
	"Five":  "5/5",
}

// ValidateRecord ensures the record can take part in store merges.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.DetailURL) == "" {
		return fmt.Errorf("record missing detail url")
	}
	if strings.TrimSpace(r.Code()) == "" {
		return fmt.Errorf("record missing unique code for %s", r.DetailURL)
	}
	if IsHeaderRow(r.Row()) {
		return fmt.Errorf("record is a header row")
	}
	return nil
}

// RatingFromClasses maps a rating element's class attribute onto the closed
// "1/5".."5/5" scale. The last class other than the base class decides;
// anything unrecognized yields models.DefaultRating.
func RatingFromClasses(classAttr string) string {
	rating := models.DefaultRating
	for _, class := range strings.Fields(classAttr) {
		if class == RatingBaseClass {
			continue
		}
		if r, ok := ratings[class]; ok {
			rating = r
		} else {
			rating = models.DefaultRating
		}
	}
	return rating
}

// ParseAvailability extracts N from text such as "In stock (22 available)".
// It returns nil when the pattern is absent.
func ParseAvailability(text string) *int {
	match := availabilityPattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return nil
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &n
}

// CategoryFileName turns a category name into its store file name,
// e.g. "Science Fiction" -> "science_fiction.csv".
func CategoryFileName(category string) string {
	name := strings.ToLower(strings.TrimSpace(category))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	return name + ".csv"
}

// IsHeaderRow reports whether a row rendered in models.Columns order is a
// header echoed as data. Every non-empty cell must equal its own column name
// and most columns must be present, since a header that went through record
// conversion loses its numeric cell.
func IsHeaderRow(row []string) bool {
	if len(row) != len(models.Columns) {
		return false
	}
	matches := 0
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		switch cell {
		case "":
		case models.Columns[i]:
			matches++
		default:
			return false
		}
	}
	return matches*2 > len(models.Columns)
}

// IsHeaderLike reports whether a raw store row holds the same value set as
// the file's header.
func IsHeaderLike(row, header []string) bool {
	return sameSet(row, header)
}

func sameSet(a, b []string) bool {
	left := make(map[string]struct{}, len(a))
	for _, v := range a {
		left[strings.TrimSpace(v)] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, v := range b {
		right[strings.TrimSpace(v)] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for k := range left {
		if _, ok := right[k]; !ok {
			return false
		}
	}
	return true
}
