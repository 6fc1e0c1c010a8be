// Command careflow serves the workflow composer: streaming workflow
// generation over WebSocket and AG-UI SSE, runtime condition and loop
// decisions, practice insights, and an MCP tool server.
//
// Configuration is via environment variables (a .env file is loaded when
// present):
//
//	CAREFLOW_PORT            - Server port (default: 8000)
//	CAREFLOW_LOG_LEVEL       - debug, info, warn or error (default: info)
//	CAREFLOW_LOG_JSON        - JSON log lines (default: false)
//	CAREFLOW_CORS_ORIGINS    - Comma-separated allowed origins (default: *)
//	CAREFLOW_PROVIDER        - anthropic, openai or google (default: anthropic)
//	CAREFLOW_MODEL           - Model override (default: provider default)
//	CAREFLOW_STREAM_TIMEOUT  - Per-request generation timeout (default: 2m)
//	CAREFLOW_HISTORY_WINDOW  - Turns of history in each prompt (default: 4)
//	CAREFLOW_TURN_BUDGET     - Characters kept per history turn (default: 200)
//	CAREFLOW_SPLIT_MARKERS   - Detect markers split across fragments (default: false)
//	CAREFLOW_MAX_ATTEMPTS    - Attempts per model call (default: 1)
//	CAREFLOW_CACHE_TTL       - Insight cache lifetime (default: 1h)
//	CAREFLOW_CACHE_SIZE      - Insight cache entries (default: 1024)
//	ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY
//
// Usage:
//
//	careflow serve
//	careflow mcp
//	careflow blocks --workflow-type practice
//	careflow validate workflow.json
package main

import "os"

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
