//go:build noprom

package metrics

// enablePrometheus is a no-op when built with the noprom tag.
func enablePrometheus(addr string) error { return nil }
