package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeOutput renders v as indented JSON or through text.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func fprintln(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
