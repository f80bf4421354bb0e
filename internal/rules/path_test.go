package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathRejectsBadSyntax(t *testing.T) {
	bad := []string{
		"",
		".",
		"technical.",
		".technical",
		"technical..daily",
		"technical.daily.key-indicators",
		"technical.daily.rsi 14",
		"a.b[0]",
	}
	for _, raw := range bad {
		_, err := ParsePath(raw)
		assert.Error(t, err, "path %q", raw)
	}
}

func TestParsePathAcceptsValidSegments(t *testing.T) {
	good := []string{
		"ticker",
		"technical.daily.key_indicators.rsi_14",
		"forecasting.0.prediction.2",
		"forecasting.-1.prediction.0",
		"news.articles.0.impact.level",
		"forecasting.0.task_metadata.5d",
	}
	for _, raw := range good {
		_, err := ParsePath(raw)
		assert.NoError(t, err, "path %q", raw)
	}
}

func TestPathFloatStructMapSlice(t *testing.T) {
	rep := testReport()

	v, ok := MustPath("technical.daily.key_indicators.rsi_14").Float(rep)
	require.True(t, ok)
	assert.Equal(t, 25.0, v)

	v, ok = MustPath("forecasting.0.prediction.2").Float(rep)
	require.True(t, ok)
	assert.Equal(t, 0.5, v)

	v, ok = MustPath("technical.daily.patterns.1.score").Float(rep)
	require.True(t, ok)
	assert.Equal(t, 41.0, v)

	v, ok = MustPath("news.summary.article_count").Float(rep)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestPathNegativeIndex(t *testing.T) {
	rep := testReport()

	v, ok := MustPath("forecasting.-1.prediction.0").Float(rep)
	require.True(t, ok)
	assert.Equal(t, 3.5, v)

	v, ok = MustPath("technical.daily.patterns.-2.score").Float(rep)
	require.True(t, ok)
	assert.Equal(t, 68.0, v)
}

func TestPathMissingIntermediates(t *testing.T) {
	rep := testReport()
	rep.Technical.Intraday = nil
	rep.News = nil

	cases := []string{
		"technical.intraday.key_indicators.rsi_14", // nil pointer mid-path
		"technical.daily.key_indicators.unknown",   // missing map key
		"forecasting.9.prediction.0",               // index out of range
		"forecasting.-9.prediction.0",              // negative index out of range
		"news.summary.overall_score",               // nil section
		"technical.daily.patterns.score",           // key applied to a list
		"ticker.inner",                             // descend into a scalar
	}
	for _, raw := range cases {
		_, ok := MustPath(raw).Float(rep)
		assert.False(t, ok, "path %q", raw)
	}
}

func TestPathNullValueIsMissing(t *testing.T) {
	rep := testReport()
	rep.Technical.Daily.KeyIndicators["rsi_14"] = nil

	_, ok := MustPath("technical.daily.key_indicators.rsi_14").Float(rep)
	assert.False(t, ok)
}

func TestPathStr(t *testing.T) {
	rep := testReport()

	s, ok := MustPath("technical.daily.trend.mid.direction").Str(rep)
	require.True(t, ok)
	assert.Equal(t, "uptrend", s)

	s, ok = MustPath("news.articles.0.impact.level").Str(rep)
	require.True(t, ok)
	assert.Equal(t, "high", s)

	_, ok = MustPath("technical.daily.key_indicators.rsi_14").Str(rep)
	assert.False(t, ok, "numeric terminal is not a string")
}

func TestPathFloatRejectsNonNumericTerminal(t *testing.T) {
	rep := testReport()

	_, ok := MustPath("technical.daily.trend.mid.direction").Float(rep)
	assert.False(t, ok)
}
