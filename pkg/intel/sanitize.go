package intel

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// maxRawTextPreview bounds the raw model text echoed back on parse failure.
const maxRawTextPreview = 500

var (
	reLeadingFence  = regexp.MustCompile("(?i)^```(?:json)?")
	reTrailingFence = regexp.MustCompile("```$")
)

// StripCodeFences removes a leading ``` or ```json marker, a trailing ```
// marker and the surrounding whitespace.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimSpace(reLeadingFence.ReplaceAllString(text, ""))
	text = strings.TrimSpace(reTrailingFence.ReplaceAllString(text, ""))
	return text
}

// SanitizeAndParse turns raw model text into a JSON value. Strict parsing is
// tried first; if that fails the text between the first '{' and the last '}'
// is parsed instead. Numbers are kept as json.Number.
func SanitizeAndParse(raw string) (any, error) {
	text := StripCodeFences(raw)
	if text == "" {
		return nil, NewError(ErrCodeEmptyContent, "Model returned empty text")
	}

	value, strictErr := decodeStrict(text)
	if strictErr == nil {
		return value, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if value, err := decodeStrict(text[start : end+1]); err == nil {
			return value, nil
		}
	}

	return nil, WrapError(ErrCodeMalformedJSON, "Failed to parse JSON response", strictErr).
		WithDetail("rawText", truncateRunes(text, maxRawTextPreview))
}

// decodeStrict decodes exactly one JSON value with nothing but whitespace after it.
func decodeStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return value, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
