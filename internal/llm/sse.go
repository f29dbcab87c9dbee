package llm

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event.
type sseEvent struct {
	Name string
	Data string
	ID   string
}

// sseParser reads the SSE line protocol: "field: value" lines, events
// separated by blank lines. Comment lines (leading colon) are skipped and
// multiple data lines are joined with newlines.
type sseParser struct {
	reader *bufio.Reader
}

func newSSEParser(r io.Reader) *sseParser {
	return &sseParser{reader: bufio.NewReader(r)}
}

// Next returns the next event, or io.EOF when the stream ends. A partially
// accumulated event at EOF is returned before the EOF.
func (p *sseParser) Next() (*sseEvent, error) {
	var event sseEvent
	var dataLines []string
	seen := false

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && seen {
				event.Data = strings.Join(dataLines, "\n")
				return &event, nil
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !seen {
				continue
			}
			event.Data = strings.Join(dataLines, "\n")
			return &event, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event.Name = value
			seen = true
		case "data":
			dataLines = append(dataLines, value)
			seen = true
		case "id":
			event.ID = value
			seen = true
		}
	}
}

// sseDoneMarker terminates OpenAI-style SSE streams.
const sseDoneMarker = "[DONE]"
