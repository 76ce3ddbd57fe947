// Command copilot is a research assistant that answers questions by letting a
// reasoning engine call web search, page fetch, report search, encyclopedia and
// local-corpus capabilities in a bounded loop.
//
// Usage:
//
//	copilot "What did the Apollo 11 crew bring back?"   # answer once
//	copilot                                             # interactive session
//	copilot serve --addr :8080                          # HTTP API
//	copilot mcp                                         # MCP stdio server
//	copilot tools                                       # list capabilities
//	copilot index ./corpus                              # build the local corpus index
//	copilot stats --window 24h                          # usage from Prometheus
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
