package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/subforge/subex/pkg/log"
)

// Tesseract runs the tesseract CLI in TSV mode, one process per bitmap.
type Tesseract struct {
	cmd      string
	language string
	psm      string
}

// NewTesseract builds an engine for the given tesseract language code
// (ISO 639-2, e.g. "eng" or "deu").
func NewTesseract(cmd, language string) *Tesseract {
	if cmd == "" {
		cmd = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{
		cmd:      cmd,
		language: language,
		// assume a uniform block of text, subtitles are short
		// multi-line blocks
		psm: "6",
	}
}

func (t *Tesseract) Recognize(ctx context.Context, img *image.Gray) (Result, error) {
	var input bytes.Buffer
	if err := png.Encode(&input, img); err != nil {
		return Result{}, errors.Wrap(err, "failed to encode bitmap")
	}

	args := []string{"stdin", "stdout", "--psm", t.psm, "-l", t.language, "tsv"}
	cmd := exec.CommandContext(ctx, t.cmd, args...)
	cmd.Stdin = &input

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("Running OCR: %s %s", t.cmd, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return Result{}, errors.Wrapf(err, "tesseract failed: %s", stderr.String())
	}

	return parseTSV(stdout.String()), nil
}

func (t *Tesseract) Close() error {
	return nil
}

// TSV column layout emitted by tesseract.
const (
	tsvColumns = 12
	colLevel   = 0
	colBlock   = 2
	colPar     = 3
	colLine    = 4
	colConf    = 10
	colText    = 11

	wordLevel = "5"
)

// parseTSV assembles the word rows of a tesseract TSV report into
// recognized text. Words on the same line are joined by spaces, line
// breaks follow the block/paragraph/line grouping. Confidence is the
// mean word confidence scaled to [0, 1].
func parseTSV(report string) Result {
	var (
		lines     []string
		words     []string
		current   string
		confSum   float64
		confCount int
	)

	flush := func() {
		if len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
			words = nil
		}
	}

	for _, row := range strings.Split(report, "\n") {
		cols := strings.Split(row, "\t")
		if len(cols) < tsvColumns || cols[colLevel] != wordLevel {
			continue
		}
		word := strings.TrimSpace(cols[colText])
		if word == "" {
			continue
		}

		key := cols[colBlock] + "/" + cols[colPar] + "/" + cols[colLine]
		if key != current {
			flush()
			current = key
		}
		words = append(words, word)

		if conf, err := strconv.ParseFloat(cols[colConf], 64); err == nil && conf >= 0 {
			confSum += conf
			confCount++
		}
	}
	flush()

	result := Result{Text: strings.Join(lines, "\n")}
	if confCount > 0 {
		result.Confidence = confSum / float64(confCount) / 100
	}
	return result
}
