package capture

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kennygrant/sanitize"
)

// Content types of the objects written by the pipeline.
const (
	PNGContentType = "image/png"
	ZipContentType = "application/zip"
)

// ArtifactName builds the base name for the capture of rawURL at position
// index in the submitted batch. The host is transliterated to a plain ASCII
// slug so keys stay portable across storage backends.
func ArtifactName(index int, rawURL string, at time.Time) string {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	slug := hostSlug(host)
	if slug == "" {
		slug = "unknown"
	}
	return fmt.Sprintf("%d-%s-%d.png", index, slug, at.UnixMilli())
}

// hostSlug lowercases the host, swaps accented characters for their ASCII
// equivalents, and reduces everything else to single dashes.
func hostSlug(host string) string {
	host = sanitize.Accents(strings.ToLower(host))
	var b strings.Builder
	b.Grow(len(host))
	lastDash := true
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// ObjectKey returns the storage key for a single capture artifact.
func ObjectKey(jobID, name string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, name)
}

// ArchiveKey returns the storage key for a job's bundled archive.
func ArchiveKey(jobID string, at time.Time) string {
	return fmt.Sprintf("jobs/%s/captures-%d.zip", jobID, at.UnixMilli())
}
