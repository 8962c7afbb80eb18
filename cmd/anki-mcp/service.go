// Package main implements the anki-mcp server: MCP tools bridged onto the
// AnkiConnect HTTP API.
package main

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/flashbridge/anki-mcp/internal/anki"
)

// Service holds the dependencies tool handlers need. It is constructed once
// in main and its methods are registered as handlers, so tests can build as
// many independent instances as they like.
type Service struct {
	Client *anki.Client
	Logger *zap.Logger
}

// NewService creates a Service around an AnkiConnect client.
func NewService(client *anki.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Client: client, Logger: logger}
}

// errorResult renders an error for the LLM, keeping backend-reported errors
// distinguishable from transport failures.
func (s *Service) errorResult(doing string, err error) *mcp.CallToolResult {
	var backendErr *anki.BackendError
	if errors.As(err, &backendErr) {
		s.Logger.Warn("backend error", zap.String("doing", doing), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf(
			"AnkiConnect error: %s\n\nMake sure Anki is running and AnkiConnect is installed.",
			backendErr.Message))
	}
	s.Logger.Warn("transport error", zap.String("doing", doing), zap.Error(err))
	return mcp.NewToolResultError(fmt.Sprintf("Error %s: %v", doing, err))
}

// argument extraction helpers; tool arguments arrive as a loosely typed map

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func stringArgDefault(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intArgDefault(args map[string]interface{}, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	out := []string{}
	if raw, ok := args[key].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// int64SliceArg reads an array of ids. JSON numbers arrive as float64,
// which is exact for Anki's millisecond-epoch ids.
func int64SliceArg(args map[string]interface{}, key string) []int64 {
	var out []int64
	if raw, ok := args[key].([]interface{}); ok {
		for _, item := range raw {
			if n, ok := item.(float64); ok {
				out = append(out, int64(n))
			}
		}
	}
	return out
}

func intSliceArg(args map[string]interface{}, key string) []int {
	var out []int
	if raw, ok := args[key].([]interface{}); ok {
		for _, item := range raw {
			if n, ok := item.(float64); ok {
				out = append(out, int(n))
			}
		}
	}
	return out
}

func stringMapArg(args map[string]interface{}, key string) map[string]string {
	out := map[string]string{}
	if raw, ok := args[key].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}
