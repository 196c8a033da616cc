package parsers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	logx "github.com/knu-deptqa/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024
	maxReasonLen  = 1024
	maxExamples   = 2
	maxErrSnippet = 200
)

var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

// DefaultRejectReason is used when a "no" verdict carries no justification.
const DefaultRejectReason = "no reason given"

// Verdict is a parsed yes/no classifier answer.
type Verdict struct {
	Yes    bool
	Reason string
}

// leading noise models like to emit before the answer token
const leadingNoise = "\"'`*_#>-[( \t\r\n"

func normalize(content string) (string, error) {
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("content invalid utf8")
	}
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "classifier_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
		for !utf8.ValidString(content) {
			content = content[:len(content)-1]
		}
	}
	return strings.TrimLeft(content, leadingNoise), nil
}

// hasToken reports whether s starts with token (case-insensitive) followed by a non-letter.
func hasToken(s, token string) bool {
	if len(s) < len(token) || !strings.EqualFold(s[:len(token)], token) {
		return false
	}
	rest := s[len(token):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// ParseVerdict parses output that must start with a yes/no token followed by a short reason.
// Output without a recognized leading token is an error; callers treat it as a rejection.
func ParseVerdict(content string) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "classifier_parser").Msgf("panic recovered: %v", r)
			v = Verdict{}
			err = errx.New(fmt.Errorf("verdict parser panic"), http.StatusInternalServerError, errx.MalformedOutputMessage)
		}
	}()

	s, err := normalize(content)
	if err != nil {
		return Verdict{}, errx.New(err, http.StatusBadGateway, errx.MalformedOutputMessage)
	}

	var rest string
	switch {
	case hasToken(s, "yes"):
		v.Yes = true
		rest = s[len("yes"):]
	case hasToken(s, "no"):
		rest = s[len("no"):]
	default:
		return Verdict{}, errx.New(fmt.Errorf("unrecognized verdict: %q", safeSnippet(content)), http.StatusBadGateway, errx.MalformedOutputMessage)
	}

	v.Reason = cleanReason(rest)
	if !v.Yes && v.Reason == "" {
		v.Reason = DefaultRejectReason
	}
	return v, nil
}

func cleanReason(s string) string {
	s = strings.TrimLeft(s, "\"'`*_.,:;!-)] \t\r\n")
	s = strings.TrimSpace(s)
	if len(s) > maxReasonLen {
		s = s[:maxReasonLen]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
	}
	return s
}

// ParseLanguage accepts a bare ko/en tag (or the language name).
func ParseLanguage(content string) (model.Language, error) {
	s, err := normalize(content)
	if err != nil {
		return "", err
	}
	switch {
	case hasToken(s, "ko"), hasToken(s, "korean"), strings.HasPrefix(s, "한국어"):
		return model.Korean, nil
	case hasToken(s, "en"), hasToken(s, "english"), strings.HasPrefix(s, "영어"):
		return model.English, nil
	}
	return "", fmt.Errorf("unrecognized language tag: %q", safeSnippet(content))
}

// ParseDepartment resolves classifier output to a catalog department.
// The first line must name a department exactly, modulo surrounding quotes and whitespace.
func ParseDepartment(content string) (model.Department, bool) {
	s, err := normalize(content)
	if err != nil {
		return model.Department{}, false
	}
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'`*. \t")
	return model.LookupDepartment(s)
}

// ParseExamples extracts up to two example questions from a bulleted or numbered list.
func ParseExamples(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(line, "\"'` ")
		if line == "" || !utf8.ValidString(line) {
			continue
		}
		out = append(out, line)
		if len(out) == maxExamples {
			break
		}
	}
	return out
}

// HangulShare returns the share of Hangul letters among all letters in text.
func HangulShare(text string) float64 {
	var letters, hangul int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Hangul, r) {
			hangul++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(hangul) / float64(letters)
}

// safeSnippet returns a shortened, single-line version of s for error messages.
func safeSnippet(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxErrSnippet {
		s = s[:maxErrSnippet]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
		return s + "..."
	}
	return s
}
