// Package context stores per-request values on a context.Context.
package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	ProfileIDKey = ContextKey("X-Profile-Id")
)

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

// SetProfileID records the profile a request operates on
func SetProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, ProfileIDKey, profileID)
}

func GetProfileID(ctx context.Context) string {
	return get(ctx, ProfileIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

// Fields returns the request values set on ctx as log fields
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	for name, key := range map[string]ContextKey{
		"request_id": RequestIDKey,
		"method":     MethodKey,
		"route":      RouteKey,
		"remote_ip":  RemoteIPKey,
		"profile_id": ProfileIDKey,
	} {
		if v := get(ctx, key); v != "" {
			fields[name] = v
		}
	}
	return fields
}
