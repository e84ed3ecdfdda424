package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// DefaultWriter writes SRT subtitle files
type DefaultWriter struct{}

// NewWriter creates a new subtitle file writer
func NewWriter() Writer {
	return &DefaultWriter{}
}

// Write writes the subtitle document to the specified path
func (w *DefaultWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	for i, line := range subtitle.Lines {
		index := line.Index
		if index == 0 {
			index = i + 1
		}
		fmt.Fprintf(writer, "%d\n", index)

		startTime := formatDuration(line.StartTime)
		endTime := formatDuration(line.EndTime)
		fmt.Fprintf(writer, "%s --> %s\n", startTime, endTime)

		fmt.Fprintf(writer, "%s\n\n", line.Text)
	}

	return nil
}

// formatDuration formats time.Duration to SRT time format
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
