package market

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSVAliasesAndOrder(t *testing.T) {
	raw := "\ufeffTime,O,H,L,C,Vol\n" +
		"1700000000,100,101,99,100.5,10\n" +
		"1700003600,100.5,102,100,101,12\n"
	candles, err := LoadCSV(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, 12.0, candles[1].Volume)
}

func TestLoadCSVMissingColumn(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("timestamp,open,high,low,close\n1,1,1,1,1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))
	var de *DataError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "volume", de.Field)
	assert.Equal(t, -1, de.Row)
}

func TestLoadCSVRowErrors(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		row   int
		field string
	}{
		{"missing value", "1700000000,100,101,99,,1\n", 0, "close"},
		{"not a number", "1700000000,100,abc,99,100,1\n", 0, "high"},
		{"non positive price", "1700000000,100,101,0,100,1\n", 0, "low"},
		{"high below low", "1700000000,100,98,99,100,1\n", 0, "high"},
		{"not increasing", "1700003600,100,101,99,100,1\n1700000000,100,101,99,100,1\n", 1, "timestamp"},
		{"duplicate timestamp", "1700000000,100,101,99,100,1\n1700000000,100,101,99,100,1\n", 1, "timestamp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader("timestamp,open,high,low,close,volume\n" + tc.body))
			require.Error(t, err)
			var de *DataError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tc.row, de.Row)
			assert.Equal(t, tc.field, de.Field)
		})
	}
}

func TestLoadCSVEmpty(t *testing.T) {
	_, err := LoadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrData)

	_, err = LoadCSV(strings.NewReader("timestamp,open,high,low,close,volume\n"))
	assert.ErrorIs(t, err, ErrData)
}

func TestLoadJSONForms(t *testing.T) {
	objects := `[{"timestamp":"2024-01-01T00:00:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":3}]`
	candles, err := LoadJSON([]byte(objects))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(1704067200000), candles[0].OpenTime)

	nested := `{"klines":[[1704067200000,"1","2","0.5","1.5","3",1704070799999]]}`
	candles, err = LoadJSON([]byte(nested))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 1.5, candles[0].Close)
	assert.Equal(t, int64(1704070799999), candles[0].CloseTime)

	_, err = LoadJSON([]byte(`{"foo":1}`))
	assert.ErrorIs(t, err, ErrData)

	_, err = LoadJSON([]byte(`[{"timestamp":1,"open":1}]`))
	assert.ErrorIs(t, err, ErrData)
}

func TestLoadFileDispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "btc.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,open,high,low,close,volume\n2024-01-01,1,2,0.5,1.5,3\n"), 0o644))
	candles, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, candles, 1)

	_, err = LoadFile(filepath.Join(dir, "btc.parquet"))
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	ms, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), ms)

	ms, err = ParseTimestamp("1700000000123")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ms)

	ms, err = ParseTimestamp("2024-01-01 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, int64(1704067200000), ms)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
	_, err = ParseTimestamp("-5")
	assert.Error(t, err)
}
