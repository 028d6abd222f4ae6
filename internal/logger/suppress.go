package logger

import "context"

type suppressKey struct{}

// Suppress returns a context under which Debug, Info and Warn messages logged
// through the *Ctx helpers are dropped. Errors are always emitted.
//
// Suppression is scoped to the returned context and its children, so it is
// safe under concurrent use: unrelated goroutines keep logging normally.
// Nested calls increase the depth; Unsuppress on a derived context only
// removes one level.
func Suppress(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey{}, SuppressDepth(ctx)+1)
}

// Unsuppress returns a context with one level of suppression removed.
func Unsuppress(ctx context.Context) context.Context {
	depth := SuppressDepth(ctx)
	if depth == 0 {
		return ctx
	}
	return context.WithValue(ctx, suppressKey{}, depth-1)
}

// SuppressDepth reports how many Suppress scopes ctx is nested in.
func SuppressDepth(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	depth, _ := ctx.Value(suppressKey{}).(int)
	return depth
}

// IsSuppressed reports whether ctx carries at least one suppression scope.
func IsSuppressed(ctx context.Context) bool {
	return SuppressDepth(ctx) > 0
}

func logCtx(ctx context.Context, level Level, format string, v ...any) {
	if level < LevelError && IsSuppressed(ctx) {
		return
	}
	log(level, format, v...)
}

func DebugCtx(ctx context.Context, format string, v ...any) {
	logCtx(ctx, LevelDebug, format, v...)
}

func InfoCtx(ctx context.Context, format string, v ...any) {
	logCtx(ctx, LevelInfo, format, v...)
}

func WarnCtx(ctx context.Context, format string, v ...any) {
	logCtx(ctx, LevelWarn, format, v...)
}

func ErrorCtx(ctx context.Context, format string, v ...any) {
	logCtx(ctx, LevelError, format, v...)
}
