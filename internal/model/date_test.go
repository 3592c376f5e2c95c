package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_NormalizesZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	late := time.Date(2026, 10, 18, 23, 30, 0, 0, tokyo)

	got := Day(late)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", FormatDay(d))

	_, err = ParseDay("28/02/2026")
	assert.Error(t, err)
}

func TestTrailingDays(t *testing.T) {
	end := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	days := TrailingDays(end, 3)

	require.Len(t, days, 3)
	assert.Equal(t, "2026-03-02", FormatDay(days[0]))
	assert.Equal(t, "2026-03-01", FormatDay(days[1]))
	assert.Equal(t, "2026-02-28", FormatDay(days[2]))

	assert.Nil(t, TrailingDays(end, 0))
}
