// Package pdsindex parses the Planetary Data System's tab-delimited
// edrindex.tab archives published for the retired Opportunity and Spirit
// rovers. There is no suitable third-party PDS parser available, so this is
// built directly on bufio.Scanner's default line splitting and imports only
// the standard library (see DESIGN.md).
package pdsindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Variant identifies a field-layout shape observed in an index file.
type Variant int

const (
	// VariantStandard covers the 55-59 field camera volumes that carry
	// path_name and file_name.
	VariantStandard Variant = iota
	// VariantDescent is the DESCAM/entry-descent-landing volume: 52
	// fields, path_name and file_name omitted.
	VariantDescent
)

// standard field offsets: the named fields this package extracts occupy the
// leading columns of a 55-59 field row; the remaining trailing columns carry
// data this package has no use for and are never indexed.
const (
	stdProductID = iota
	stdInstrumentID
	stdPathName
	stdFileName
	stdSol
	stdStartTime
	stdFilterName
	stdImageWidth
	stdImageHeight
	stdMastAz
	stdMastEl
	stdSolarAz
	stdSolarEl
)

// descent field offsets: path_name and file_name are absent, so every field
// after instrument_id shifts down by two relative to the standard layout.
// These are likewise the leading columns of a fixed 52-field row.
const (
	dscProductID = iota
	dscInstrumentID
	dscSol
	dscStartTime
	dscFilterName
	dscImageWidth
	dscImageHeight
	dscMastAz
	dscMastEl
	dscSolarAz
	dscSolarEl
)

// Real PDS row field counts, per the archive's published format: standard
// camera volumes carry 55-59 fields; the DESCENT (DESCAM) volume carries
// exactly 52. These are the actual on-disk row widths, not the count of
// fields this package names above — most of a standard row's 55-59 columns
// are never extracted.
const (
	descentFieldCount     = 52
	minStandardFieldCount = 55
	maxStandardFieldCount = 59
)

// Row is one parsed PDS index record, mapped to a fixed named field set.
type Row struct {
	Variant      Variant
	ProductID    string
	InstrumentID string
	Sol          int
	StartTime    time.Time
	FilterName   string
	ImageWidth   int
	ImageHeight  int
	MastAz       *float64
	MastEl       *float64
	SolarAz      *float64
	SolarEl      *float64
	PathName     string
	FileName     string

	// CameraShortName is the canonical name from MapCamera(InstrumentID).
	CameraShortName string
	// BrowseURL is set only for VariantStandard rows, where path_name and
	// file_name are present to derive it from.
	BrowseURL string
}

// SkipStats accumulates counts of rows skipped during a parse, for the
// warning-and-continue behavior malformed rows require.
type SkipStats struct {
	ShortRows     int
	MalformedRows int
}

// Parser streams rows out of a tab-delimited PDS index one at a time. It
// holds no more than one row's worth of text in memory at once, bounding
// additional memory to a single row regardless of input size.
type Parser struct {
	scanner *bufio.Scanner
	onSkip  func(lineNo int, reason string)
	lineNo  int
	Skipped SkipStats
}

// New returns a Parser reading tab-delimited rows from r. onSkip, if
// non-nil, is called once per skipped row with a human-readable reason; the
// caller is expected to log it (this package never logs directly, so it can
// be exercised without a logging dependency in unit tests).
func New(r io.Reader, onSkip func(lineNo int, reason string)) *Parser {
	s := bufio.NewScanner(r)
	// A single index row can run past bufio.Scanner's default 64KiB
	// token limit once all fields are populated; grow the max token size
	// rather than the whole-file buffer.
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)
	return &Parser{scanner: s, onSkip: onSkip}
}

// Next returns the next parsed row. It returns (nil, false, nil) at normal
// end of input. Malformed or unrecognized-variant rows are skipped
// internally (counted in Skipped and reported via onSkip) and never
// surfaced as an error; Next only returns an error for a read failure on
// the underlying stream.
func (p *Parser) Next() (*Row, bool, error) {
	for p.scanner.Scan() {
		p.lineNo++
		line := p.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := parseLine(line)
		if err != nil {
			p.Skipped.ShortRows++
			p.report(p.lineNo, err.Error())
			continue
		}
		if err := fillRow(row, strings.Split(line, "\t")); err != nil {
			p.Skipped.MalformedRows++
			p.report(p.lineNo, err.Error())
			continue
		}
		return row, true, nil
	}
	if err := p.scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("read pds index: %w", err)
	}
	return nil, false, nil
}

func (p *Parser) report(lineNo int, reason string) {
	if p.onSkip != nil {
		p.onSkip(lineNo, reason)
	}
}

// parseLine classifies the variant by the row's real field count (and, for
// the 52-field case, by instrument id) per the archive's documented layout:
// 55-59 fields is standard, exactly 52 fields is DESCENT — and only when the
// instrument is DESCAM, since a 52-field row with any other instrument is
// unrecognized, not DESCENT.
func parseLine(line string) (*Row, error) {
	fields := strings.Split(line, "\t")
	n := len(fields)
	switch {
	case n == descentFieldCount:
		instrument := unquote(fields[dscInstrumentID])
		if !strings.EqualFold(instrument, "DESCAM") {
			return nil, fmt.Errorf("pdsindex: %d fields but instrument %q is not DESCAM", n, instrument)
		}
		return &Row{Variant: VariantDescent}, nil
	case n >= minStandardFieldCount && n <= maxStandardFieldCount:
		return &Row{Variant: VariantStandard}, nil
	default:
		return nil, fmt.Errorf("pdsindex: unrecognized field count %d, want %d or %d-%d",
			n, descentFieldCount, minStandardFieldCount, maxStandardFieldCount)
	}
}

func fillRow(row *Row, fields []string) error {
	var err error
	switch row.Variant {
	case VariantStandard:
		row.ProductID = unquote(fields[stdProductID])
		row.InstrumentID = unquote(fields[stdInstrumentID])
		row.PathName = unquote(fields[stdPathName])
		row.FileName = unquote(fields[stdFileName])
		if row.Sol, err = parseInt(fields[stdSol]); err != nil {
			return fmt.Errorf("pdsindex: sol: %w", err)
		}
		if row.StartTime, err = parseTime(fields[stdStartTime]); err != nil {
			return fmt.Errorf("pdsindex: start_time: %w", err)
		}
		row.FilterName = unquote(fields[stdFilterName])
		row.ImageWidth, _ = parseInt(fields[stdImageWidth])
		row.ImageHeight, _ = parseInt(fields[stdImageHeight])
		row.MastAz = parseOptionalFloat(fields[stdMastAz])
		row.MastEl = parseOptionalFloat(fields[stdMastEl])
		row.SolarAz = parseOptionalFloat(fields[stdSolarAz])
		row.SolarEl = parseOptionalFloat(fields[stdSolarEl])
		row.BrowseURL = browseURL(row.PathName, row.FileName, row.Sol)
	case VariantDescent:
		row.ProductID = unquote(fields[dscProductID])
		row.InstrumentID = unquote(fields[dscInstrumentID])
		if row.Sol, err = parseInt(fields[dscSol]); err != nil {
			return fmt.Errorf("pdsindex: sol: %w", err)
		}
		if row.StartTime, err = parseTime(fields[dscStartTime]); err != nil {
			return fmt.Errorf("pdsindex: start_time: %w", err)
		}
		row.FilterName = unquote(fields[dscFilterName])
		row.ImageWidth, _ = parseInt(fields[dscImageWidth])
		row.ImageHeight, _ = parseInt(fields[dscImageHeight])
		row.MastAz = parseOptionalFloat(fields[dscMastAz])
		row.MastEl = parseOptionalFloat(fields[dscMastEl])
		row.SolarAz = parseOptionalFloat(fields[dscSolarAz])
		row.SolarEl = parseOptionalFloat(fields[dscSolarEl])
	default:
		return errors.New("pdsindex: unknown variant")
	}
	if row.ProductID == "" {
		return errors.New("pdsindex: empty product_id")
	}
	row.CameraShortName = MapCamera(row.InstrumentID)
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(unquote(s))
}

func parseOptionalFloat(s string) *float64 {
	s = unquote(s)
	if s == "" || s == "UNK" || s == "N/A" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// pdsTimeLayout matches the PDS start_time convention: a UTC timestamp with
// fractional seconds, e.g. "2004-01-25T04:30:00.123Z".
const pdsTimeLayout = "2006-01-02T15:04:05.000Z"

func parseTime(s string) (time.Time, error) {
	s = unquote(s)
	if t, err := time.Parse(pdsTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// browseURL rewrites a PDS data path into its corresponding browse path,
// "/<volume>/data/sol<N>/edr/" becomes
// "/<volume>/browse/sol<NNNN>/edr/" with sol zero-padded to 4 digits, and
// ".jpg" appended to the filename.
func browseURL(pathName, fileName string, sol int) string {
	if pathName == "" || fileName == "" {
		return ""
	}
	solToken := fmt.Sprintf("sol%d", sol)
	paddedToken := fmt.Sprintf("sol%04d", sol)
	browsePath := strings.Replace(pathName, "/data/"+solToken+"/", "/browse/"+paddedToken+"/", 1)
	browsePath = strings.Replace(browsePath, "/data/", "/browse/", 1)
	name := fileName
	if !strings.HasSuffix(strings.ToLower(name), ".jpg") {
		name += ".jpg"
	}
	return strings.TrimSuffix(browsePath, "/") + "/" + name
}
