package process

import (
	"fmt"
	"strings"
)

// Split parses a command string into arguments.
// Handles quoted strings and basic escaping.
func Split(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inQuote bool
	var quoteChar rune

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case inQuote:
			if r == quoteChar {
				inQuote = false
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = true
			quoteChar = r
		case r == ' ' || r == '\t':
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
