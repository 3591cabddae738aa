package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/firestash/pkg/engine"
	"github.com/cuemby/firestash/pkg/values"
)

// scriptCommand is one line of a serve/dump script file: a JSON object
// naming an op and its arguments. fields, where present, is a Value's
// wire encoding (values.WireValue) so a script can author any typed
// value a write accepts.
type scriptCommand struct {
	Op     string            `json:"op"`
	Path   string            `json:"path"`
	Fields values.WireValue  `json:"fields"`
}

// parseScript reads one scriptCommand per non-blank, non-comment line.
func parseScript(r io.Reader) ([]scriptCommand, error) {
	var cmds []scriptCommand
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := trimSpaceComment(line)
		if trimmed == "" {
			continue
		}
		var c scriptCommand
		if err := json.Unmarshal([]byte(trimmed), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cmds = append(cmds, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cmds, nil
}

func trimSpaceComment(line string) string {
	s := line
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	if len(s) >= 1 && s[0] == '#' {
		return ""
	}
	return s
}

// runScript executes every command against e in order, printing each
// read command's result to stdout.
func runScript(e *engine.Engine, cmds []scriptCommand) error {
	ctx := context.Background()
	for i, c := range cmds {
		switch c.Op {
		case "set":
			fields, err := values.Decode(c.Fields)
			if err != nil {
				return fmt.Errorf("command %d (set %s): %w", i, c.Path, err)
			}
			res, err := e.BatchWrite(ctx, []engine.Write{{Path: c.Path, Fields: fields, HasUpdate: true}})
			if err != nil {
				return fmt.Errorf("command %d (set %s): %w", i, c.Path, err)
			}
			if st := res.Statuses[0]; st.Err != nil {
				fmt.Printf("set %s: error: %v\n", c.Path, st.Err)
			} else {
				fmt.Printf("set %s: update_time=%s\n", c.Path, st.Result.UpdateTime.Format(timeFormat))
			}
		case "delete":
			res, err := e.BatchWrite(ctx, []engine.Write{{Path: c.Path, IsDelete: true}})
			if err != nil {
				return fmt.Errorf("command %d (delete %s): %w", i, c.Path, err)
			}
			if st := res.Statuses[0]; st.Err != nil {
				fmt.Printf("delete %s: error: %v\n", c.Path, st.Err)
			} else {
				fmt.Printf("delete %s: ok\n", c.Path)
			}
		case "get":
			ch, err := e.BatchGetDocuments(ctx, []string{c.Path}, nil)
			if err != nil {
				return fmt.Errorf("command %d (get %s): %w", i, c.Path, err)
			}
			doc := (<-ch).Document
			if !doc.Exists {
				fmt.Printf("get %s: not found\n", c.Path)
				continue
			}
			out, _ := json.Marshal(values.Encode(doc.Fields))
			fmt.Printf("get %s: %s\n", c.Path, out)
		default:
			return fmt.Errorf("command %d: unknown op %q", i, c.Op)
		}
	}
	return nil
}

const timeFormat = "2006-01-02T15:04:05.000000Z07:00"
