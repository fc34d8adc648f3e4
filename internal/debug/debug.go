package debug

import (
	"fmt"
	"io"
	"sync"
)

// MCPMode tracks if we're running as an MCP stdio server (set by main).
// In that mode nothing may be written to stdout except protocol frames.
var MCPMode = false

// debugOutput is the writer for debug output (defaults to nil, meaning no output)
var debugOutput io.Writer

// debugMutex protects access to debug output
var debugMutex sync.Mutex

// SetMCPMode enables MCP mode which suppresses all debug output to stdio
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// Printf writes a formatted debug message when a debug writer is configured.
func Printf(format string, args ...interface{}) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	if debugOutput == nil || MCPMode {
		return
	}
	fmt.Fprintf(debugOutput, format+"\n", args...)
}
