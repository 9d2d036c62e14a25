package cmd

import (
	"fmt"
	"io"

	"github.com/KaramelBytes/sheetqa/internal/utils"
)

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
