package audit

import (
	"context"
	"strings"

	"gatehouse.dev/internal/obs"
)

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":     {},
	"refreshtoken": {},
	"accesstoken":  {},
	"token":        {},
}

// Redact returns a deep copy of details with credential fields replaced.
// Keys are matched case-insensitively at any depth.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = redactValue(t[i])
		}
		return cp
	default:
		return v
	}
}

// logEntry mirrors a stored entry onto the structured log.
func logEntry(ctx context.Context, e Entry) {
	obs.Ctx(ctx).Info().
		Str("type", "audit").
		Str("audit_id", e.ID).
		Str("user_id", e.ActorID).
		Str("action", e.Action).
		Str("resource", e.ResourceKind).
		Str("resource_id", e.ResourceID).
		Str("ip", e.IPAddress).
		Msg("audit recorded")
}
