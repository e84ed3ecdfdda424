package ocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tsvHeader = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext"

func tsvRow(level, block, par, line, word, conf, text string) string {
	return strings.Join([]string{level, "1", block, par, line, word, "0", "0", "10", "10", conf, text}, "\t")
}

func TestParseTSV_JoinsWordsAndLines(t *testing.T) {
	report := strings.Join([]string{
		tsvHeader,
		tsvRow("1", "1", "0", "0", "0", "-1", ""),
		tsvRow("4", "1", "1", "1", "0", "-1", ""),
		tsvRow("5", "1", "1", "1", "1", "90", "Hello"),
		tsvRow("5", "1", "1", "1", "2", "80", "world."),
		tsvRow("4", "1", "1", "2", "0", "-1", ""),
		tsvRow("5", "1", "1", "2", "1", "70", "Goodbye."),
	}, "\n")

	got := parseTSV(report)
	assert.Equal(t, "Hello world.\nGoodbye.", got.Text)
	assert.InDelta(t, 0.80, got.Confidence, 1e-9)
}

func TestParseTSV_BlankBitmap(t *testing.T) {
	report := strings.Join([]string{
		tsvHeader,
		tsvRow("1", "1", "0", "0", "0", "-1", ""),
	}, "\n")

	got := parseTSV(report)
	assert.Empty(t, got.Text)
	assert.Zero(t, got.Confidence)
}

func TestParseTSV_SkipsEmptyWords(t *testing.T) {
	report := strings.Join([]string{
		tsvHeader,
		tsvRow("5", "1", "1", "1", "1", "95", " "),
		tsvRow("5", "1", "1", "1", "2", "85", "Text"),
	}, "\n")

	got := parseTSV(report)
	assert.Equal(t, "Text", got.Text)
	assert.InDelta(t, 0.85, got.Confidence, 1e-9)
}

func TestParseTSV_KeepsTextWithoutConfidences(t *testing.T) {
	// Word rows whose conf field is negative or unparsable still carry
	// text; report it with zero confidence rather than dropping it.
	report := strings.Join([]string{
		tsvHeader,
		tsvRow("5", "1", "1", "1", "1", "-1", "Hello"),
		tsvRow("5", "1", "1", "1", "2", "bogus", "world."),
	}, "\n")

	got := parseTSV(report)
	assert.Equal(t, "Hello world.", got.Text)
	assert.Zero(t, got.Confidence)
}

func TestParseTSV_MalformedRows(t *testing.T) {
	report := "garbage\nnot\ttsv\n"
	assert.Zero(t, parseTSV(report))
}

func TestNewTesseract_Defaults(t *testing.T) {
	engine := NewTesseract("", "")
	assert.Equal(t, "tesseract", engine.cmd)
	assert.Equal(t, "eng", engine.language)
}
