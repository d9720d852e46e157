package intel

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeAndParseFencedJSON(t *testing.T) {
	got, err := SanitizeAndParse("```json\n{\"a\":1}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": json.Number("1")}, got)
}

func TestSanitizeAndParseGenericFenceAndCase(t *testing.T) {
	for _, raw := range []string{
		"```\n{\"a\":1}\n```",
		"  ```JSON{\"a\":1}```  ",
		"{\"a\":1}",
		"\n\n{\"a\":1}\n",
	} {
		got, err := SanitizeAndParse(raw)
		require.NoError(t, err, "raw=%q", raw)
		assert.Equal(t, map[string]any{"a": json.Number("1")}, got)
	}
}

func TestSanitizeAndParseBraceExtraction(t *testing.T) {
	got, err := SanitizeAndParse("Sure! Here you go: {\"a\":1} — hope that helps")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": json.Number("1")}, got)
}

func TestSanitizeAndParseTrailingDataFallsBackToBraces(t *testing.T) {
	got, err := SanitizeAndParse("{\"a\":{\"b\":[1,2]}}\nLet me know if you need more.")
	require.NoError(t, err)
	obj, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, obj, "a")
}

func TestSanitizeAndParseKeepsNonObjectJSON(t *testing.T) {
	got, err := SanitizeAndParse("[1, 2, 3]")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSanitizeAndParseEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "```json\n```", "```"} {
		_, err := SanitizeAndParse(raw)
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeEmptyContent), "raw=%q err=%v", raw, err)
	}
}

func TestSanitizeAndParseMalformed(t *testing.T) {
	for _, raw := range []string{
		"no json here at all",
		"} backwards {",
		"{\"a\": 1",
		"prefix {not json} suffix",
	} {
		_, err := SanitizeAndParse(raw)
		require.Error(t, err)
		e, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeMalformedJSON, e.Code, "raw=%q", raw)
		assert.Equal(t, raw, e.Details["rawText"])
	}
}

func TestSanitizeAndParseTruncatesRawText(t *testing.T) {
	raw := strings.Repeat("é", 800)
	_, err := SanitizeAndParse(raw)
	e, ok := AsError(err)
	require.True(t, ok)
	rawText, _ := e.Details["rawText"].(string)
	assert.Equal(t, 500, len([]rune(rawText)))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"x":true}`, StripCodeFences("```json\n{\"x\":true}\n```"))
	assert.Equal(t, "plain", StripCodeFences("  plain  "))
}
