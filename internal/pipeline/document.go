package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ignite/audio-retro/internal/drive"
)

var separator = strings.Repeat("─", 50)

// BuildDocument assembles the combined output: the analysed file's report
// followed by every other CSV verbatim, each cut at limit characters.
func BuildDocument(heading, report string, others []drive.File, limit int) string {
	var sb strings.Builder
	sb.WriteString("# " + heading + "\n\n")
	sb.WriteString(report)
	sb.WriteString("\n\n" + separator + "\n\n")

	if len(others) == 0 {
		return sb.String()
	}

	sb.WriteString("# Other CSV Files\n\n")
	for i, f := range others {
		sb.WriteString("## " + f.Name + "\n")
		sb.WriteString(separator + "\n")
		sb.WriteString(truncate(f.Content, limit))
		if i < len(others)-1 {
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func truncate(content string, limit int) string {
	n := utf8.RuneCountInString(content)
	if limit <= 0 || n <= limit {
		return content
	}
	cut := 0
	for i := range content {
		if limit == 0 {
			cut = i
			break
		}
		limit--
	}
	return fmt.Sprintf("Content is large (%d characters), showing first portion:\n%s", n, content[:cut])
}
