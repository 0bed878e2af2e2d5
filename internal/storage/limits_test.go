package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDayIsLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	at := time.Date(2026, 3, 14, 2, 30, 45, 0, loc)

	got := startOfDay(at)

	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, loc), got)
	// The stats window and the Redis daily key agree on what "today" is.
	assert.Equal(t, dayKeySuffix(at), dayKeySuffix(got))
	// A UTC truncate would have landed on the previous local day here.
	assert.NotEqual(t, at.Truncate(24*time.Hour), got)
}
