package core

import (
	"context"
	"sort"
	"strings"
)

// LogWithLevel fans a message plus fields out through a glog logger, using the
// fields-logger capability when the implementation supports it.
func LogWithLevel(logger Logger, ctx context.Context, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(CloneFields(fields))
	}
	args := FlattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func LogInfo(logger Logger, ctx context.Context, message string, fields map[string]any) {
	LogWithLevel(logger, ctx, "info", message, fields)
}

func LogError(logger Logger, ctx context.Context, message string, fields map[string]any) {
	LogWithLevel(logger, ctx, "error", message, fields)
}

func CloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

// FlattenFields produces deterministic key/value pairs for logger args.
func FlattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
