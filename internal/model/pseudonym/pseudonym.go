package pseudonym

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds free-typed pseudonyms.
const MaxNameLength = 64

// ErrInvalid is returned when neither a catalog id nor a usable custom name is given.
var ErrInvalid = errors.New("invalid pseudonym")

// Pseudonym is the display name that stands in for the user for one session.
type Pseudonym struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Seed returns the fixed catalog offered on the setup screen.
func Seed() []Pseudonym {
	return []Pseudonym{
		{ID: "moonbeam", Name: "Moonbeam"},
		{ID: "river", Name: "River"},
		{ID: "phoenix", Name: "Phoenix"},
		{ID: "stargazer", Name: "Stargazer"},
		{ID: "whisperwind", Name: "Whisperwind"},
		{ID: "sunpetal", Name: "Sunpetal"},
		{ID: "diya", Name: "Diya"},
		{ID: "asha", Name: "Asha"},
		{ID: "kiran", Name: "Kiran"},
		{ID: "shanti", Name: "Shanti"},
		{ID: "kamal", Name: "Kamal"},
		{ID: "ambar", Name: "Ambar"},
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Custom builds a pseudonym from a free-typed name.
func Custom(name string) (Pseudonym, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxNameLength {
		return Pseudonym{}, ErrInvalid
	}
	id := whitespaceRun.ReplaceAllString(strings.ToLower(trimmed), "-")
	return Pseudonym{ID: id, Name: trimmed}, nil
}
