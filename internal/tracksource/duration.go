package tracksource

import (
	"fmt"
	"regexp"
	"strconv"
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// formatDuration renders an ISO-8601 video duration such as PT4M13S as
// "4:13", or "1:02:05" when it runs an hour or more. Unparseable input yields
// an empty label.
func formatDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil || iso == "P" || iso == "PT" {
		return ""
	}
	part := func(i int) int {
		n, _ := strconv.Atoi(m[i])
		return n
	}
	hours := part(1)*24 + part(2)
	minutes, seconds := part(3), part(4)

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
