package journal

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradejournal/trade"
)

func TestWritePositionsCSV(t *testing.T) {
	t.Parallel()

	closed := closedLong()
	closed.Tags = []string{"a", "b"}
	closed.Notes = "line one, with comma"

	var buf bytes.Buffer
	require.NoError(t, WritePositionsCSV(&buf, []trade.Position{closed, openShort()}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])

	want := []string{
		"BTCUSDT_LONG_1",
		"BTCUSDT",
		"LONG",
		"CLOSED",
		"2023-11-14T22:13:20Z",
		"100",
		"10",
		"0",
		"2023-11-14T22:19:20Z",
		"105",
		"50",
		"0.1",
		"USDT",
		"1",
		"1",
		"a;b",
		"line one, with comma",
		"false",
	}
	assert.Equal(t, want, records[1])

	open := records[2]
	assert.Equal(t, "OPEN", open[3])
	assert.Equal(t, "", open[8], "open positions have no exit date")
	assert.Equal(t, "", open[9])
	assert.Equal(t, "2", open[7])
}

func TestWritePositionsCSVEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WritePositionsCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
