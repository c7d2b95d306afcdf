// Package sessionid derives a best-effort stable identifier for the shell
// or notebook kernel a CLI invocation is running inside, so the agent
// daemon can tell "two commands from the same terminal" apart from "two
// commands from different terminals sharing a board". Grounded closely on
// original_source/cli/agent/client/session.py: the same ancestor-walk
// depth cap, the same fixed terminal-process-name set, and the same
// fallbacks (parent pid, then hash of cwd).
package sessionid

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

const maxAncestorLevels = 10

var terminalNames = map[string]bool{
	"powershell.exe": true, "pwsh.exe": true, "cmd.exe": true, "bash.exe": true,
	"zsh.exe": true, "sh.exe": true, "fish.exe": true,
	"windowsterminal.exe": true, "conemu64.exe": true, "conemu.exe": true,
	"code.exe": true, "pycharm": true, "pycharm64.exe": true, "idea": true, "idea64.exe": true,
	"bash": true, "zsh": true, "sh": true, "fish": true, "tmux": true, "alacritty": true,
	"gnome-terminal-server": true, "konsole": true, "iterm2": true, "terminal": true,
}

var jupyterKeywords = []string{"jupyter", "ipykernel", "ipython"}

// Get derives the session id for the current process tree, caching
// nothing itself — callers that want the cached-for-process-lifetime
// behavior of get_cached_session_id should memoize the result themselves.
func Get() string {
	if pid, ok := findTerminalAncestor(); ok {
		return strconv.Itoa(pid)
	}
	if pid, ok := findJupyterAncestor(); ok {
		return strconv.Itoa(pid)
	}
	if ppid := os.Getppid(); ppid > 0 {
		return strconv.Itoa(ppid)
	}
	return hashCwd()
}

func findTerminalAncestor() (int, bool) {
	return walkAncestors(func(p *process.Process) bool {
		name, err := p.Name()
		if err != nil {
			return false
		}
		return terminalNames[strings.ToLower(name)]
	})
}

func findJupyterAncestor() (int, bool) {
	return walkAncestors(func(p *process.Process) bool {
		cmdline, err := p.Cmdline()
		if err != nil {
			return false
		}
		lower := strings.ToLower(cmdline)
		for _, kw := range jupyterKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	})
}

// walkAncestors climbs the process tree up to maxAncestorLevels, stopping
// early on a pid-0 parent or a lookup failure, mirroring the Python
// original's try/except-wrapped walk.
func walkAncestors(match func(*process.Process) bool) (int, bool) {
	current, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, false
	}
	for level := 0; level < maxAncestorLevels; level++ {
		if current == nil {
			break
		}
		if match(current) {
			return int(current.Pid), true
		}
		ppid, err := current.Ppid()
		if err != nil || ppid == 0 {
			break
		}
		parent, err := process.NewProcess(ppid)
		if err != nil {
			break
		}
		current = parent
	}
	return 0, false
}

func hashCwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	h := fnv.New32a()
	h.Write([]byte(cwd))
	return strconv.FormatUint(uint64(h.Sum32()%100000000), 10)
}
