package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/andybalholm/crlf"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
)

// DefaultReader reads SRT subtitle files
type DefaultReader struct{}

// NewReader creates a new subtitle file reader
func NewReader() Reader {
	return &DefaultReader{}
}

// Read reads an SRT subtitle file
func (r *DefaultReader) Read(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer file.Close()

	var lines []Line
	scanner := bufio.NewScanner(transform.NewReader(file, new(crlf.Normalize)))

	currentLine := Line{}
	state := "index" // possible values: "index", "time", "text"
	var textLines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case "index":
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue // skip non-index lines
			}
			currentLine.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			startTime, endTime, err := parseSRTTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			currentLine.StartTime = startTime
			currentLine.EndTime = endTime
			currentLine.Confidence = 1
			state = "text"
			textLines = []string{}

		case "text":
			if line == "" {
				// cue text ends
				if len(textLines) > 0 {
					currentLine.Text = strings.Join(textLines, "\n")
					lines = append(lines, currentLine)
					currentLine = Line{}
				}
				state = "index"
				textLines = []string{}
			} else {
				textLines = append(textLines, line)
			}
		}
	}

	// handle last cue
	if state == "text" && len(textLines) > 0 {
		currentLine.Text = strings.Join(textLines, "\n")
		lines = append(lines, currentLine)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	return &File{
		Lines:    lines,
		Language: DetectLanguage(lines),
		Format:   "SRT",
	}, nil
}

var srtTimeRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3}) --> (\d{2}):(\d{2}):(\d{2}),(\d{3})`)

// parseSRTTime parses an SRT cue timing line
func parseSRTTime(timeString string) (time.Duration, time.Duration, error) {
	// SRT time format: 00:02:16,612 --> 00:02:19,376
	matches := srtTimeRe.FindStringSubmatch(timeString)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	parseTime := func(hours, minutes, seconds, milliseconds string) time.Duration {
		h, _ := strconv.Atoi(hours)
		m, _ := strconv.Atoi(minutes)
		s, _ := strconv.Atoi(seconds)
		ms, _ := strconv.Atoi(milliseconds)

		return time.Duration(h)*time.Hour +
			time.Duration(m)*time.Minute +
			time.Duration(s)*time.Second +
			time.Duration(ms)*time.Millisecond
	}

	startTime := parseTime(matches[1], matches[2], matches[3], matches[4])
	endTime := parseTime(matches[5], matches[6], matches[7], matches[8])
	return startTime, endTime, nil
}

// DetectLanguage detects the dominant language of the cue texts
func DetectLanguage(lines []Line) language.Tag {
	if len(lines) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)
	for _, line := range lines {
		lang := whatlanggo.DetectLang(line.Text).Iso6391()
		langMap[lang]++
	}

	// Get top language
	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}

	return language.All.Make(topLang)
}
