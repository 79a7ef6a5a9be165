package engine

import (
	"os"
	"strings"
)

const (
	asanOptions = "abort_on_error=1:detect_leaks=0:" +
		"malloc_context_size=0:symbolize=0:" +
		"allocator_may_return_null=1:" +
		"detect_odr_violation=0:handle_segv=0:" +
		"handle_sigbus=0:handle_abort=0:" +
		"handle_sigfpe=0:handle_sigill=0"
	ubsanOptions = "abort_on_error=1:" +
		"allocator_release_to_os_interval_ms=500:" +
		"handle_abort=0:handle_segv=0:" +
		"handle_sigbus=0:handle_sigfpe=0:" +
		"handle_sigill=0:print_stacktrace=0:" +
		"symbolize=0:symbolize_inline_frames=0"
)

// FuzzEnv is the controller's environment with the sanitizer options every
// engine runs under. CONFIGURE is a build-time switch and must not leak, and
// the exporter settings of the controller are not the target's.
func FuzzEnv() []string {
	env := filterOtelEnv(unsetEnv(os.Environ(), "CONFIGURE"))
	env = SetEnv(env, "ASAN_OPTIONS", asanOptions)
	return SetEnv(env, "UBSAN_OPTIONS", ubsanOptions)
}

func lookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):], true
		}
	}
	return "", false
}

func SetEnv(env []string, key, value string) []string {
	return append(unsetEnv(env, key), key+"="+value)
}

func unsetEnv(env []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}

// appendOption adds opt to a colon separated sanitizer option list.
func appendOption(env []string, key, opt string) []string {
	if cur, ok := lookupEnv(env, key); ok && cur != "" {
		return SetEnv(env, key, cur+":"+opt)
	}
	return SetEnv(env, key, opt)
}

// get rid of all environment variables that are related to OpenTelemetry
func filterOtelEnv(env []string) []string {
	var filtered []string
	for _, e := range env {
		if strings.HasPrefix(e, "OTEL_") || strings.HasPrefix(e, "OTLP_") {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}
