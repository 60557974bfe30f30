// Package email derives presentable account fields from an email address.
// Registration uses it to default the display name when the client sends
// none.
package email

import (
	"strings"
	"unicode"
)

// localSeparators split a local part like "jane.doe+test" into name words.
func localSeparators(r rune) bool {
	return r == '.' || r == '_' || r == '-' || r == '+'
}

// DeriveNameFromEmail splits the local part of an address into a first and
// last name, title-cased. A local part with a single word, or one that is
// all separators, falls back to "User" for the missing pieces.
func DeriveNameFromEmail(address string) (first, last string) {
	local := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		local = address[:at]
	}

	words := strings.FieldsFunc(local, localSeparators)
	switch len(words) {
	case 0:
		return "User", "User"
	case 1:
		return titleWord(words[0]), "User"
	default:
		return titleWord(words[0]), titleWord(words[len(words)-1])
	}
}

func titleWord(w string) string {
	runes := []rune(w)
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}
