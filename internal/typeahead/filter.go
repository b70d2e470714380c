package typeahead

import "strings"

// filterOptions keeps the options whose label contains q, case-insensitively.
// An empty (or blank) q keeps everything.
func filterOptions[T any](items []Option[T], q string) []Option[T] {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := make([]Option[T], 0, len(items))
	for _, opt := range items {
		if needle == "" || strings.Contains(strings.ToLower(opt.Label), needle) {
			out = append(out, opt)
		}
	}
	return out
}
