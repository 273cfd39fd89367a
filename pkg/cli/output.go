package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

func writeOutput(w io.Writer, format string, v interface{}, table func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "table", "":
		table(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
