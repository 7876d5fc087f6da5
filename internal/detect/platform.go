package detect

import "strings"

// Platform derives the coarse platform bucket from a source domain using
// fixed substring matching. Unrecognized or empty domains fall into "other".
func Platform(domain string) string {
	d := strings.ToLower(domain)
	switch {
	case strings.Contains(d, "tiktok"):
		return "tiktok"
	case strings.Contains(d, "reddit"):
		return "reddit"
	case strings.Contains(d, "youtube"):
		return "youtube"
	case strings.Contains(d, "instagram"):
		return "instagram"
	case strings.Contains(d, "twitter"), strings.Contains(d, "x.com"):
		return "twitter"
	case strings.Contains(d, "facebook"):
		return "facebook"
	default:
		return "other"
	}
}
