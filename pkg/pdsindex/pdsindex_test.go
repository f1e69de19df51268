package pdsindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// padFields appends placeholder trailing columns so the row matches the
// archive's real on-disk width — standard volumes run 55-59 fields and the
// DESCENT volume exactly 52, far more than the leading subset this package
// names and extracts.
func padFields(fields []string, total int) []string {
	for len(fields) < total {
		fields = append(fields, `"x"`)
	}
	return fields
}

func standardRow(productID, instrument, path, file, sol, startTime string) string {
	fields := []string{
		`"` + productID + `"`, `"` + instrument + `"`, `"` + path + `"`, `"` + file + `"`,
		sol, startTime, `"BLUE"`, "1024", "1024", "12.5", "34.2", "190.0", "45.0",
	}
	return strings.Join(padFields(fields, minStandardFieldCount), "\t")
}

func descentRow(productID, instrument, sol, startTime string) string {
	fields := []string{
		`"` + productID + `"`, `"` + instrument + `"`, sol, startTime,
		`"CLEAR"`, "256", "256", "UNK", "UNK", "UNK", "UNK",
	}
	return strings.Join(padFields(fields, descentFieldCount), "\t")
}

func TestParseStandardRow(t *testing.T) {
	line := standardRow("1P1234567890", "PANCAM_LEFT", "/op/data/sol0123/edr/", "1p123456789edr", "123", "2004-01-25T04:30:00.123Z")
	p := New(strings.NewReader(line), nil)

	row, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1P1234567890", row.ProductID)
	assert.Equal(t, 123, row.Sol)
	assert.Equal(t, "PANCAM", row.CameraShortName)
	assert.Equal(t, "/op/browse/sol0123/edr/1p123456789edr.jpg", row.BrowseURL)
	require.NotNil(t, row.MastAz)
	assert.InDelta(t, 12.5, *row.MastAz, 0.001)

	_, ok, err = p.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseDescentRow(t *testing.T) {
	line := descentRow("1D128004004", "DESCAM", "0", "2004-01-04T04:35:00.000Z")
	p := New(strings.NewReader(line), nil)

	row, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1D128004004", row.ProductID)
	assert.Equal(t, 0, row.Sol)
	assert.Equal(t, "ENTRY", row.CameraShortName)
	assert.Equal(t, 0, p.Skipped.ShortRows+p.Skipped.MalformedRows)
}

func TestSkipsShortRowWithWarning(t *testing.T) {
	var warnings []string
	line := "\"1P1\"\t\"PANCAM_LEFT\"\t\"only\"\t\"three fields\""
	p := New(strings.NewReader(line), func(lineNo int, reason string) {
		warnings = append(warnings, reason)
	})

	_, ok, err := p.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, p.Skipped.ShortRows)
	assert.Len(t, warnings, 1)
}

func TestAmbiguous52FieldRowRequiresDescam(t *testing.T) {
	fields := make([]string, descentFieldCount)
	for i := range fields {
		fields[i] = `"x"`
	}
	fields[dscInstrumentID] = `"PANCAM_LEFT"`
	line := strings.Join(fields, "\t")

	p := New(strings.NewReader(line), nil)
	_, ok, err := p.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, p.Skipped.ShortRows)
}

func TestMultipleRowsStreamInOrder(t *testing.T) {
	lines := []string{
		standardRow("1P1", "FRONT_HAZCAM_LEFT", "/op/data/sol0001/edr/", "1p1edr", "1", "2004-01-04T00:00:00.000Z"),
		standardRow("1P2", "NAVCAM_LEFT", "/op/data/sol0002/edr/", "1p2edr", "2", "2004-01-05T00:00:00.000Z"),
	}
	p := New(strings.NewReader(strings.Join(lines, "\n")), nil)

	var sols []int
	for {
		row, ok, err := p.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		sols = append(sols, row.Sol)
	}
	assert.Equal(t, []int{1, 2}, sols)
}

func TestParseStandardRowAtMaxFieldCount(t *testing.T) {
	fields := []string{
		`"1P1234567890"`, `"PANCAM_LEFT"`, `"/op/data/sol0123/edr/"`, `"1p123456789edr"`,
		"123", "2004-01-25T04:30:00.123Z", `"BLUE"`, "1024", "1024", "12.5", "34.2", "190.0", "45.0",
	}
	line := strings.Join(padFields(fields, maxStandardFieldCount), "\t")
	p := New(strings.NewReader(line), nil)

	row, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantStandard, row.Variant)
	assert.Equal(t, "1P1234567890", row.ProductID)
}

func TestSkipsRowWithFieldCountBetweenKnownVariants(t *testing.T) {
	fields := make([]string, descentFieldCount+1)
	for i := range fields {
		fields[i] = `"x"`
	}
	line := strings.Join(fields, "\t")

	p := New(strings.NewReader(line), nil)
	_, ok, err := p.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, p.Skipped.ShortRows)
}

func TestMapCameraUnknownPassesThrough(t *testing.T) {
	assert.Equal(t, "MINITES", MapCamera("mi"))
	assert.Equal(t, "WEIRDCAM", MapCamera("weirdcam"))
}
