/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchNeedsWork returns every condition keyword contained in the description.
// Matching is lowercase substring containment anchored at word boundaries:
// a keyword must start a word, and a keyword whose last word is shorter than
// four letters must also end one, so "as is" does not fire inside "has island".
func (t *Tables) MatchNeedsWork(description string) []string {
	matched := []string{}
	if description == "" {
		return matched
	}
	lower := strings.ToLower(description)
	for _, kw := range t.needsWork {
		if containsKeyword(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func containsKeyword(text, kw string) bool {
	strictEnd := len(lastWord(kw)) < 4
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(kw)
		if boundaryBefore(text, start) && (!strictEnd || boundaryAfter(text, end)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func lastWord(kw string) string {
	fields := strings.FieldsFunc(kw, func(r rune) bool { return !isWordRune(r) })
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
