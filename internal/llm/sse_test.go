package llm

import (
	"io"
	"strings"
	"testing"
)

func TestSSESingleEvent(t *testing.T) {
	p := newSSEParser(strings.NewReader("event: message_start\ndata: {\"a\":1}\n\n"))
	ev, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Name != "message_start" || ev.Data != `{"a":1}` {
		t.Errorf("event = %+v", ev)
	}
	if _, err := p.Next(); err != io.EOF {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestSSEMultipleDataLinesJoined(t *testing.T) {
	p := newSSEParser(strings.NewReader("data: line one\ndata: line two\n\n"))
	ev, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Data != "line one\nline two" {
		t.Errorf("Data = %q", ev.Data)
	}
}

func TestSSESkipsComments(t *testing.T) {
	p := newSSEParser(strings.NewReader(": keepalive\n\ndata: real\n\n"))
	ev, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Data != "real" {
		t.Errorf("Data = %q", ev.Data)
	}
}

func TestSSEPartialEventAtEOF(t *testing.T) {
	// Stream cut off after the data line, before the blank separator.
	p := newSSEParser(strings.NewReader("event: done\ndata: tail\n"))
	ev, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Name != "done" || ev.Data != "tail" {
		t.Errorf("event = %+v", ev)
	}
	if _, err := p.Next(); err != io.EOF {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestSSECarriageReturns(t *testing.T) {
	p := newSSEParser(strings.NewReader("data: a\r\n\r\n"))
	ev, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Data != "a" {
		t.Errorf("Data = %q", ev.Data)
	}
}

func TestSSEIDField(t *testing.T) {
	p := newSSEParser(strings.NewReader("id: 42\ndata: x\n\n"))
	ev, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID != "42" {
		t.Errorf("ID = %q", ev.ID)
	}
}

func TestSSEMultipleEvents(t *testing.T) {
	p := newSSEParser(strings.NewReader("data: first\n\ndata: [DONE]\n\n"))
	first, err := p.Next()
	if err != nil || first.Data != "first" {
		t.Fatalf("first = %+v, %v", first, err)
	}
	second, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.Data != sseDoneMarker {
		t.Errorf("Data = %q", second.Data)
	}
}
