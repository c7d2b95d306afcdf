// Package session implements the Session registry (spec component F): the
// terminal-scoped foreground/background mapping from logical SessionIds
// to physical Connections, plus the PortKey -> Connection map itself.
// Grounded on original_source/cli/agent/server's single global STATE
// object, re-architected into an explicit Runtime value with one mutex
// guarding lookups/mutations (never held during Transport I/O, favoring
// short critical sections around shared maps).
package session

import (
	"sort"
	"sync"

	"github.com/replx-dev/replx/internal/connection"
	"github.com/replx-dev/replx/internal/deviceinfo"
	"github.com/replx-dev/replx/internal/rerr"
)

// Session is one terminal-scoped logical client identity.
type Session struct {
	SID         string
	Foreground  string // port key, "" if none
	Backgrounds map[string]struct{}
	DefaultPort string
}

func newSession(sid string) *Session {
	return &Session{SID: sid, Backgrounds: make(map[string]struct{})}
}

// ConnFactory opens a new Connection for a port not yet known to the
// registry; the daemon supplies the real serial-opening implementation.
type ConnFactory func(port string) (*connection.Connection, error)

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	conns    map[string]*connection.Connection
	open     ConnFactory
}

func New(open ConnFactory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		conns:    make(map[string]*connection.Connection),
		open:     open,
	}
}

func (r *Registry) sessionFor(sid string) *Session {
	s, ok := r.sessions[sid]
	if !ok {
		s = newSession(sid)
		r.sessions[sid] = s
	}
	return s
}

// ensureConn returns the shared Connection for port, opening one via the
// factory if this is the first session to reference it.
func (r *Registry) ensureConn(port string) (*connection.Connection, error) {
	if c, ok := r.conns[port]; ok {
		return c, nil
	}
	c, err := r.open(port)
	if err != nil {
		return nil, err
	}
	r.conns[port] = c
	return c, nil
}

// SetupResult is session_setup's response shape.
type SetupResult struct {
	Existing bool
	Port     string
}

// SessionSetup implements session_setup: ensure a
// Connection for port, promote it to foreground if requested (demoting
// whatever was foreground into backgrounds), and no-op if port is already
// this session's foreground.
func (r *Registry) SessionSetup(sid, port string, asForeground bool) (SetupResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.ensureConn(port); err != nil {
		return SetupResult{}, err
	}
	s := r.sessionFor(sid)

	if asForeground && s.Foreground == port {
		return SetupResult{Existing: true, Port: port}, nil
	}

	if asForeground {
		if s.Foreground != "" {
			s.Backgrounds[s.Foreground] = struct{}{}
		}
		delete(s.Backgrounds, port)
		s.Foreground = port
	} else {
		if s.Foreground != port {
			s.Backgrounds[port] = struct{}{}
		}
	}
	return SetupResult{Port: port}, nil
}

// SessionSwitchFG implements session_switch_fg: port must already be
// referenced by this session (foreground or background).
func (r *Registry) SessionSwitchFG(sid, port string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionFor(sid)
	if s.Foreground == port {
		return nil
	}
	if _, ok := s.Backgrounds[port]; !ok {
		return rerr.New(rerr.ValidationError, "port is not in this session's set; call session_setup first")
	}
	delete(s.Backgrounds, port)
	if s.Foreground != "" {
		s.Backgrounds[s.Foreground] = struct{}{}
	}
	s.Foreground = port
	return nil
}

// SessionDisconnect implements session_disconnect: removes port from
// every session, then frees the Connection if no session references it
// anymore.
func (r *Registry) SessionDisconnect(port string) (freed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.Foreground == port {
			s.Foreground = ""
		}
		delete(s.Backgrounds, port)
	}

	if !r.portReferenced(port) {
		if c, ok := r.conns[port]; ok {
			c.Close()
			delete(r.conns, port)
			return true, nil
		}
	}
	return false, nil
}

func (r *Registry) portReferenced(port string) bool {
	for _, s := range r.sessions {
		if s.Foreground == port {
			return true
		}
		if _, ok := s.Backgrounds[port]; ok {
			return true
		}
	}
	return false
}

// ConnectionHandle exposes what session_info/status need about a live
// Connection without leaking the package's internal mutex dance.
type ConnectionHandle struct {
	Port string
	Info deviceinfo.BoardInfo
	Busy string
}

// SessionSnapshot is one row of session_info's response.
type SessionSnapshot struct {
	SID         string
	Foreground  string
	Backgrounds []string
	DefaultPort string
}

// SessionInfo implements session_info: a snapshot of every session and
// every known Connection.
func (r *Registry) SessionInfo() ([]SessionSnapshot, []ConnectionHandle) {
	r.mu.Lock()
	sessions := make([]SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		bg := make([]string, 0, len(s.Backgrounds))
		for p := range s.Backgrounds {
			bg = append(bg, p)
		}
		sort.Strings(bg)
		sessions = append(sessions, SessionSnapshot{
			SID: s.SID, Foreground: s.Foreground, Backgrounds: bg, DefaultPort: s.DefaultPort,
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SID < sessions[j].SID })

	live := make(map[string]*connection.Connection, len(r.conns))
	for port, c := range r.conns {
		live[port] = c
	}
	r.mu.Unlock()

	// Info may talk to the board, so it runs after the lock is released.
	conns := make([]ConnectionHandle, 0, len(live))
	for port, c := range live {
		info, _ := c.Info()
		conns = append(conns, ConnectionHandle{Port: port, Info: info, Busy: c.Busy().Kind.String()})
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].Port < conns[j].Port })

	return sessions, conns
}

// SetDefault updates the workspace-wide default (set_default=true) or just
// this session's hint (local_default=true).
func (r *Registry) SetDefault(sid, port string, workspaceWide bool, setWorkspace func(port string) error) error {
	r.mu.Lock()
	s := r.sessionFor(sid)
	s.DefaultPort = port
	r.mu.Unlock()

	if workspaceWide && setWorkspace != nil {
		return setWorkspace(port)
	}
	return nil
}

// ResolvePort resolves the caller's default connection the way
// `connect`/implicit-port resolution does: explicit arg, else session
// foreground, else session default, else error.
func (r *Registry) ResolvePort(sid, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	if !ok {
		return "", rerr.New(rerr.NotConnected, "no active session and no port specified")
	}
	if s.Foreground != "" {
		return s.Foreground, nil
	}
	if s.DefaultPort != "" {
		return s.DefaultPort, nil
	}
	return "", rerr.New(rerr.NotConnected, "no foreground or default port for this session")
}

// Connection returns the live Connection for port, or NotConnected.
func (r *Registry) Connection(port string) (*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[port]
	if !ok {
		return nil, rerr.New(rerr.NotConnected, "no connection for port "+port)
	}
	return c, nil
}

// CloseAll tears down every live Connection, used on agent shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for port, c := range r.conns {
		c.Close()
		delete(r.conns, port)
	}
}

// GC drops sessions whose owning terminal process is confirmed gone.
// alive is injected so tests and the daemon can supply process-liveness
// checks without this package depending on process-table access directly.
func (r *Registry) GC(alive func(sid string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid := range r.sessions {
		if !alive(sid) {
			delete(r.sessions, sid)
		}
	}
}
