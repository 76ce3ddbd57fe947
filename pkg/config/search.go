package config

import (
	"errors"
	"fmt"
)

// Web search backend names accepted by search.backend / WEB_SEARCH_BACKEND.
const (
	SearchBackendREST = "rest"
	SearchBackendMCP  = "mcp"
)

// ErrNoBackend is returned when no web search backend can be selected.
var ErrNoBackend = errors.New("no web search backend configured")

// SearchPlan is the outcome of backend detection.
type SearchPlan struct {
	// Primary is SearchBackendREST or SearchBackendMCP.
	Primary string
	// FallbackToMCP is set when the REST backend was chosen automatically
	// and a streaming endpoint is also configured.
	FallbackToMCP bool
}

// DetectSearchBackend applies the selection order: explicit override, then REST
// credentials, then the streaming endpoint. An explicit override never falls back.
func DetectSearchBackend(s *SearchConfig) (SearchPlan, error) {
	switch s.Backend {
	case SearchBackendREST, "tavily":
		if s.TavilyAPIKey == "" {
			return SearchPlan{}, fmt.Errorf("%w: %s=rest requires %s", ErrNoBackend, EnvWebSearchBackend, EnvTavilyAPIKey)
		}
		return SearchPlan{Primary: SearchBackendREST}, nil
	case SearchBackendMCP:
		if s.MCPURL == "" {
			return SearchPlan{}, fmt.Errorf("%w: %s=mcp requires %s", ErrNoBackend, EnvWebSearchBackend, EnvTavilyMCPURL)
		}
		return SearchPlan{Primary: SearchBackendMCP}, nil
	}

	if s.TavilyAPIKey != "" {
		return SearchPlan{Primary: SearchBackendREST, FallbackToMCP: s.MCPURL != ""}, nil
	}
	if s.MCPURL != "" {
		return SearchPlan{Primary: SearchBackendMCP}, nil
	}
	return SearchPlan{}, fmt.Errorf("%w: set %s=rest (and %s) or %s=mcp (and %s)",
		ErrNoBackend, EnvWebSearchBackend, EnvTavilyAPIKey, EnvWebSearchBackend, EnvTavilyMCPURL)
}

// IsSearchEnabled reports whether any web search backend can be selected,
// logging a warning when none can.
func IsSearchEnabled(s *SearchConfig) bool {
	if _, err := DetectSearchBackend(s); err != nil {
		logger.Warn("Web search disabled: %v", err)
		return false
	}
	return true
}
