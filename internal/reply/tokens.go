// Package reply detects control tokens in assistant replies.
package reply

import (
	"regexp"
	"strings"
)

// SilentReplyToken marks a reply that should not be delivered to the
// channel. The agent emits it when a turn needs no user-visible output.
const SilentReplyToken = "NO_REPLY"

var silentPrefixRe = regexp.MustCompile(`^\s*` + SilentReplyToken + `(?:$|\W)`)
var silentSuffixRe = regexp.MustCompile(`\b` + SilentReplyToken + `\b\W*$`)

// IsSilentReplyText reports whether text starts or ends with the silent
// reply token. The token must stand alone: at the start followed by a
// non-word character or end of string, or at the end on a word boundary.
func IsSilentReplyText(text string, token ...string) bool {
	if text == "" {
		return false
	}
	if len(token) > 0 && token[0] != "" && token[0] != SilentReplyToken {
		escaped := regexp.QuoteMeta(token[0])
		prefix := regexp.MustCompile(`^\s*` + escaped + `(?:$|\W)`)
		suffix := regexp.MustCompile(`\b` + escaped + `\b\W*$`)
		return prefix.MatchString(text) || suffix.MatchString(text)
	}
	return silentPrefixRe.MatchString(text) || silentSuffixRe.MatchString(text)
}

// StripSilentToken removes the silent reply token from the start and end
// of text, trimming surrounding whitespace.
func StripSilentToken(text string) string {
	text = silentPrefixRe.ReplaceAllString(text, "")
	text = silentSuffixRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
