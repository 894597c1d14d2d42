package capture

import "net/url"

// ValidRawURL reports whether raw parses as an absolute http(s) URL with a
// host. Anything else is dropped before a job is created rather than burned
// through the retry budget.
func ValidRawURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// FilterValid returns the subset of raws accepted by ValidRawURL, preserving
// submission order.
func FilterValid(raws []string) []string {
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		if ValidRawURL(raw) {
			out = append(out, raw)
		}
	}
	return out
}
