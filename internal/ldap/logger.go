package ldap

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Logging subsystems registered by the provider.
const (
	SubsystemLDAP     = "ldap"
	SubsystemKerberos = "kerberos"
	SubsystemPool     = "pool"
	SubsystemADClient = "adclient"
	SubsystemProvider = "provider"
)

// LogOperation is a helper function to log an operation with timing.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting operation", SanitizeFields(fields))

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(ctx, subsystem, "Operation failed", SanitizeFields(fields))
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", SanitizeFields(fields))
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	out := make(map[string]any, len(fields)+4)
	maps.Copy(out, fields)

	out["operation"] = operation
	out["error"] = err.Error()

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		out["ldap_result_code"] = resultErr.ResultCode
		if resultErr.MatchedDN != "" {
			out["ldap_matched_dn"] = resultErr.MatchedDN
		}
		if resultErr.Err != nil {
			out["ldap_diagnostic_message"] = resultErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", SanitizeFields(out))
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	logEvent(ctx, SubsystemLDAP, "Connection event", event, fields, map[string]eventLevel{
		"connection_established": levelInfo,
		"authentication_success": levelInfo,
		"connection_failed":      levelError,
		"authentication_failed":  levelError,
		"connection_lost":        levelError,
	})
}

// LogKerberosEvent logs Kerberos-specific events.
func LogKerberosEvent(ctx context.Context, event string, fields map[string]any) {
	logEvent(ctx, SubsystemKerberos, "Kerberos event", event, fields, map[string]eventLevel{
		"client_created":         levelInfo,
		"bind_success":           levelInfo,
		"client_creation_failed": levelError,
		"bind_failed":            levelError,
		"credential_source":      levelDebug,
	})
}

// LogPoolEvent logs connection pool events.
func LogPoolEvent(ctx context.Context, event string, fields map[string]any) {
	logEvent(ctx, SubsystemPool, "Pool event", event, fields, map[string]eventLevel{
		"pool_initialized":       levelDebug,
		"connection_acquired":    levelDebug,
		"connection_released":    levelDebug,
		"connection_failed":      levelWarn,
		"health_check_failed":    levelWarn,
		"all_connections_failed": levelError,
	})
}

type eventLevel int

const (
	levelTrace eventLevel = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
)

func logEvent(ctx context.Context, subsystem, msg, event string, fields map[string]any, levels map[string]eventLevel) {
	out := make(map[string]any, len(fields)+1)
	maps.Copy(out, fields)
	out["event"] = event
	out = SanitizeFields(out)

	switch levels[event] {
	case levelDebug:
		tflog.SubsystemDebug(ctx, subsystem, msg, out)
	case levelInfo:
		tflog.SubsystemInfo(ctx, subsystem, msg, out)
	case levelWarn:
		tflog.SubsystemWarn(ctx, subsystem, msg, out)
	case levelError:
		tflog.SubsystemError(ctx, subsystem, msg, out)
	default:
		tflog.SubsystemTrace(ctx, subsystem, msg, out)
	}
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"bind_password": true,
	"secret":        true,
	"token":         true,
	"key":           true,
	"private_key":   true,
	"credential":    true,
	"credentials":   true,
	"unicodepwd":    true,
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	return containsAny(strings.ToLower(s), "password=", "passwd=", "secret=", "token=", "key=", "unicodepwd=")
}

// LogResourceOperation provides standardized entry/exit logging for Terraform resource operations.
func LogResourceOperation(ctx context.Context, resource, operation string, fields map[string]any) func(error) {
	return logEntryExit(ctx, "resource", resource, operation, fields)
}

// LogDataSourceOperation provides standardized entry/exit logging for Terraform data source operations.
func LogDataSourceOperation(ctx context.Context, dataSource, operation string, fields map[string]any) func(error) {
	return logEntryExit(ctx, "data_source", dataSource, operation, fields)
}

// LogFunctionOperation provides standardized entry/exit logging for provider functions.
func LogFunctionOperation(ctx context.Context, function string, fields map[string]any) func(error) {
	return logEntryExit(ctx, "function", function, "run", fields)
}

func logEntryExit(ctx context.Context, kind, name, operation string, fields map[string]any) func(error) {
	start := time.Now()
	label := strings.ReplaceAll(kind, "_", " ")

	entryFields := SanitizeFields(fields)
	entryFields[kind] = name
	entryFields["operation"] = operation

	tflog.SubsystemDebug(ctx, SubsystemProvider, "Starting "+label+" operation", entryFields)

	return func(err error) {
		exitFields := SanitizeFields(fields)
		exitFields[kind] = name
		exitFields["operation"] = operation
		exitFields["duration_ms"] = time.Since(start).Milliseconds()
		exitFields["has_error"] = err != nil

		if err != nil {
			exitFields["error"] = err.Error()
			tflog.SubsystemError(ctx, SubsystemProvider, capitalize(label)+" operation failed", exitFields)
			return
		}
		tflog.SubsystemDebug(ctx, SubsystemProvider, capitalize(label)+" operation completed", exitFields)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
