package analysis

import (
	"strconv"
	"strings"
)

const (
	markerOpen  = "<<<"
	markerClose = ">>>"
)

var markerEscaper = strings.NewReplacer(markerOpen, "‹‹‹", markerClose, "›››")

// BuildContext joins texts in order, each inside a numbered block:
//
//	<<<ENTRY 1>>>
//	text
//	<<<END ENTRY 1>>>
//
// Marker sequences inside a text are escaped so no entry can forge a block
// boundary. Nothing is truncated.
func BuildContext(texts []string) string {
	var sb strings.Builder
	for i, text := range texts {
		n := strconv.Itoa(i + 1)
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(markerOpen + "ENTRY " + n + markerClose + "\n")
		sb.WriteString(markerEscaper.Replace(text))
		sb.WriteString("\n" + markerOpen + "END ENTRY " + n + markerClose)
	}
	return sb.String()
}
