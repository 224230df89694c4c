package transcript

import (
	"fmt"
	"strings"
	"time"

	"laserlens/internal/logging"
	"laserlens/internal/state"
)

// Writer is the sandbox surface used for exports.
type Writer interface {
	SaveOutput(filename, content string) (string, error)
	SaveAs(name, ext, content string) (string, error)
}

// Export writes the session transcript in the given format and returns the
// written path. Terminal output is not written; it is returned as text with
// an empty path.
func Export(w Writer, sess *state.Session, format Format, at time.Time) (path, text string, err error) {
	body := Markdown(sess.Topic, sess.History)
	name := Filename(sess.Topic, at)

	switch format {
	case FormatMarkdown:
		path, err = w.SaveOutput(name, body)
		text = body
	case FormatHTML:
		text, err = HTML("Recursive Analysis of "+sess.Topic, body)
		if err == nil {
			path, err = w.SaveAs(strings.TrimSuffix(name, ".md"), ".html", text)
		}
	case FormatTerminal:
		text, err = Terminal(body, 0)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return "", "", err
	}
	if path != "" {
		logging.Session("exported %d turns to %s", len(sess.History), path)
	}
	return path, text, nil
}
