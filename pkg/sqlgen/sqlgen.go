package sqlgen

import (
	"regexp"
	"strconv"
	"strings"
)

var sqlPrintfMatcher = regexp.MustCompile("\\$([0-9]+)")
var sqlPrintfValidValue = regexp.MustCompile("^[a-zA-Z0-9_\\(\\), \\?\"]*$")

// SqlSprintf substitutes identifiers into a SQL statement template.
// Placeholders take the form $1, $2, and so on; values are restricted
// to identifier-safe characters since they cannot be bound as query
// parameters.
func SqlSprintf(format string, args ...string) string {
	matches := sqlPrintfMatcher.FindAllStringSubmatchIndex(format, -1)
	if len(matches) > len(args) {
		panic("More placeholders than args")
	}

	hunks := []string{}
	lastRightIdx := 0
	for _, match := range matches {
		aleftIdx, arightIdx, nleftIdx, nrightIdx :=
			match[0], match[1], match[2], match[3]
		parsed, err := strconv.ParseInt(format[nleftIdx:nrightIdx], 10, 64)
		if err != nil {
			panic(err)
		}

		whichArg := int(parsed) - 1
		if whichArg > len(args) {
			panic("Placeholder $" + strconv.Itoa(whichArg) + " exceeds argument count")
		}
		if !sqlPrintfValidValue.MatchString(args[whichArg]) {
			panic("Invalid value: " + args[whichArg])
		}

		hunkLeft := format[lastRightIdx:aleftIdx]
		hunks = append(hunks, hunkLeft, args[whichArg])
		lastRightIdx = arightIdx
	}

	hunks = append(hunks, format[lastRightIdx:])
	return strings.Join(hunks, "")
}
