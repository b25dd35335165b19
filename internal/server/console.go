package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/fatih/color"

	"github.com/jetstack/securechannel/internal/envelope"
	"github.com/jetstack/securechannel/internal/securechannel"
)

// console prints decrypted requests for operators running the server
// interactively. Sensitive payloads are never printed.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	compact bool
}

var (
	headerColor    = color.New(color.FgGreen)
	regularColor   = color.New(color.FgYellow)
	sensitiveColor = color.New(color.FgCyan)
)

func (c *console) print(r *http.Request, req *securechannel.Request) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	headerColor.Fprintf(c.out, "-- %s %s -> message %s\n", r.Method, r.URL.Path, req.MessageID)
	fmt.Fprintf(c.out, "Type: %s\nTimestamp: %s\n", req.Kind, req.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"))

	if req.Kind == envelope.KindSensitive || hasSecretFields(req.Payload) {
		sensitiveColor.Fprintf(c.out, "Data: <redacted, %d bytes>\n", len(req.Payload))
	} else {
		regularColor.Fprintf(c.out, "Data:\n%s\n", c.format(req.Payload))
	}
	headerColor.Fprintln(c.out, "-----")
}

// secretFields are redacted even when a request claims to be regular, since
// data.type is not covered by the GCM tag.
var secretFields = []string{"password", "private_key"}

func hasSecretFields(payload json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false
	}
	for _, name := range secretFields {
		if _, ok := fields[name]; ok {
			return true
		}
	}
	return false
}

func (c *console) format(payload json.RawMessage) string {
	var buf bytes.Buffer
	var err error
	if c.compact {
		err = json.Compact(&buf, payload)
	} else {
		err = json.Indent(&buf, payload, "", "  ")
	}
	if err != nil {
		return string(payload)
	}
	return buf.String()
}
