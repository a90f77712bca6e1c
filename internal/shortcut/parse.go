package shortcut

import (
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
)

var objectiveURLRe = regexp.MustCompile(`objectives?/(\d+)`)

// ParseObjectiveID accepts a plain number or a Shortcut objective URL
// (".../objective/15014/..." or ".../objectives/15014").
func ParseObjectiveID(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if m := objectiveURLRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewInvalidRequest("Invalid objective ID")
	}
	return id, nil
}

// ParseID parses a positive numeric id for the named field.
func ParseID(field, input string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewInvalidField(field, "must be a positive integer")
	}
	return id, nil
}
