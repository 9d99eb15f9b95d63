// Package leakdetect scans outbound text for leaked credentials — plaintext,
// base64/hex-encoded, or previously-registered known secret values — and
// redacts matches in place. It never blocks a caller; a pattern that fails
// to compile is skipped, and Scan/Redact always succeed.
package leakdetect

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const redactedText = "[REDACTED]"

// knownSecret holds the regexes generated for one registered (name, value)
// pair: the raw value plus its standard-base64, URL-safe-no-pad-base64, and
// case-insensitive hex encodings.
type knownSecret struct {
	name string
	res  []*regexp.Regexp
}

// Detector finds and redacts leaked secrets in text.
type Detector struct {
	mu    sync.RWMutex
	ac    *acAutomaton
	known []knownSecret
	// plainRes is the ordered list of builtinPatterns regexes, index-aligned
	// with the automaton's keyword indices for the non-empty-prefix ones and
	// always-eligible for the empty-prefix ones.
}

// New constructs a Detector over the fixed builtin pattern set.
func New() *Detector {
	prefixes := make([]string, len(builtinPatterns))
	for i, p := range builtinPatterns {
		prefixes[i] = p.prefix
	}
	return &Detector{ac: buildAhoCorasick(prefixes)}
}

// RegisterSecret registers a known secret value for exact-match redaction
// (and its common encodings). Values shorter than 10 characters are ignored.
func (d *Detector) RegisterSecret(name, value string) {
	if len(value) < 10 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	variants := []string{
		value,
		base64.StdEncoding.EncodeToString([]byte(value)),
		base64.RawURLEncoding.EncodeToString([]byte(value)),
		hex.EncodeToString([]byte(value)),
	}

	res := make([]*regexp.Regexp, 0, len(variants))
	for _, v := range variants {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(v))
		if err != nil {
			continue
		}
		res = append(res, re)
	}
	d.known = append(d.known, knownSecret{name: name, res: res})
}

// candidatePrefixes returns, for the given text, which builtin patterns are
// worth evaluating: prefix-less patterns are always eligible; others are
// gated by an Aho-Corasick scan of their literal prefixes.
func (d *Detector) candidatePrefixes(text string) []bool {
	hits := d.ac.MatchAny(text)
	candidates := make([]bool, len(builtinPatterns))
	for i, p := range builtinPatterns {
		if p.prefix == "" {
			candidates[i] = true
			continue
		}
		if i < len(hits) && hits[i] {
			candidates[i] = true
		}
	}
	return candidates
}

// DetectedSecret describes one located match.
type DetectedSecret struct {
	Name  string
	Start int
	End   int
}

// Scan returns every plaintext, encoded, and known-secret match found in text.
func (d *Detector) Scan(text string) []DetectedSecret {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found []DetectedSecret
	candidates := d.candidatePrefixes(text)
	for i, p := range builtinPatterns {
		if !candidates[i] {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			found = append(found, DetectedSecret{Name: p.name, Start: loc[0], End: loc[1]})
		}
	}

	for _, ks := range d.known {
		for _, re := range ks.res {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				found = append(found, DetectedSecret{Name: ks.name, Start: loc[0], End: loc[1]})
			}
		}
	}

	found = append(found, d.scanEncodedLocked(text)...)
	return found
}

// scanEncodedLocked extracts base64/hex candidate spans, attempts to decode
// each, and reports a match when the decoded text matches any plaintext
// builtin pattern. Not AC-filtered: a short encoded blob offers the automaton
// no literal prefix to key off.
func (d *Detector) scanEncodedLocked(text string) []DetectedSecret {
	var found []DetectedSecret

	tryDecoded := func(decoded []byte, start, end int) {
		if len(decoded) == 0 {
			return
		}
		s := string(decoded)
		for _, p := range builtinPatterns {
			if p.re.MatchString(s) {
				found = append(found, DetectedSecret{Name: p.name, Start: start, End: end})
				return
			}
		}
	}

	for _, loc := range base64CandidateRe.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		if decoded, err := base64.StdEncoding.DecodeString(candidate); err == nil {
			tryDecoded(decoded, loc[0], loc[1])
			continue
		}
		if decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(candidate, "=")); err == nil {
			tryDecoded(decoded, loc[0], loc[1])
		}
	}

	for _, loc := range hexCandidateRe.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		if decoded, err := hex.DecodeString(candidate); err == nil {
			tryDecoded(decoded, loc[0], loc[1])
		}
	}

	return found
}

// Redact replaces every matched span in text with "[REDACTED]". The
// candidate-eligibility decision for plaintext patterns is made once against
// the original text; the replacement passes then run in order (plaintext,
// known-secret, encoded), each operating on the progressively-redacted
// result of the previous pass. Overlapping encoded-span redactions are
// merged before replacement, and replacement always proceeds from the end of
// the text toward the start so earlier byte offsets stay valid; every cut
// point is adjusted to the nearest UTF-8 character boundary.
func (d *Detector) Redact(text string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	candidates := d.candidatePrefixes(text)
	result := text

	for i, p := range builtinPatterns {
		if !candidates[i] {
			continue
		}
		result = p.re.ReplaceAllString(result, redactedText)
	}

	for _, ks := range d.known {
		for _, re := range ks.res {
			result = re.ReplaceAllString(result, redactedText)
		}
	}

	spans := d.encodedSpans(result)
	spans = mergeSpans(spans)
	for i := len(spans) - 1; i >= 0; i-- {
		start, end := utf8Boundary(result, spans[i][0]), utf8Boundary(result, spans[i][1])
		if start >= end {
			continue
		}
		result = result[:start] + redactedText + result[end:]
	}

	return result
}

// encodedSpans returns the byte-offset spans of encoded secrets found in
// text, without the DetectedSecret name wrapper.
func (d *Detector) encodedSpans(text string) [][2]int {
	var spans [][2]int
	for _, s := range d.scanEncodedLocked(text) {
		spans = append(spans, [2]int{s.Start, s.End})
	}
	return spans
}

// mergeSpans sorts spans by start and merges any that overlap or touch.
func mergeSpans(spans [][2]int) [][2]int {
	if len(spans) == 0 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	merged := [][2]int{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0] <= last[1] {
			if s[1] > last[1] {
				last[1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// utf8Boundary walks backward from pos to the nearest valid UTF-8 rune
// boundary in s (never forward, so spans only shrink).
func utf8Boundary(s string, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(s) {
		return len(s)
	}
	for pos > 0 && isUTF8Continuation(s[pos]) {
		pos--
	}
	return pos
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}
