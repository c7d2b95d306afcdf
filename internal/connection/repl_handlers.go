package connection

import (
	"encoding/json"

	"github.com/replx-dev/replx/internal/rerr"
)

func handleReplEnter(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	cur, err := c.codec.ReplEnter(c.baseCtx)
	if err != nil {
		return nil, err
	}
	c.replCursorMu.Lock()
	c.replCursors[sid] = cur
	c.replCursorMu.Unlock()
	c.setReplAttached(sid)
	return map[string]any{"attached": true}, nil
}

func handleReplExit(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	b := c.Busy()
	if b.Kind == ReplAttached && b.OwnerSID != sid {
		return nil, rerr.New(rerr.Busy, "REPL session is owned by another session")
	}
	if err := c.codec.ReplExit(); err != nil {
		return nil, err
	}
	c.replCursorMu.Lock()
	delete(c.replCursors, sid)
	c.replCursorMu.Unlock()
	c.setIdle()
	return map[string]any{"attached": false}, nil
}

type replWriteArgs struct {
	Data string `json:"data"`
}

func handleReplWrite(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a replWriteArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return nil, c.codec.ReplWrite([]byte(a.Data))
}

func handleReplRead(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	c.replCursorMu.Lock()
	cur, ok := c.replCursors[sid]
	c.replCursorMu.Unlock()
	if !ok {
		return nil, rerr.New(rerr.ValidationError, "no active REPL attachment for this session")
	}
	data, truncated := c.codec.ReplRead(cur)
	return map[string]any{"data": string(data), "truncated": truncated}, nil
}
