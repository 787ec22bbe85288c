package backport

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxTitleSlugLen = 40

var branchNameInvalidChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// tempBranchName derives the name of the temporary backport branch from the
// target branch, the origin PR title and a timestamp.
// The timestamp avoids collisions when a backport is attempted repeatedly
// for the same PR and branch.
func tempBranchName(prefix, targetBranch, prTitle string, now time.Time) string {
	slug := branchNameInvalidChars.ReplaceAllString(strings.ToLower(prTitle), "-")
	slug = strings.Trim(slug, "-.")

	if len(slug) > maxTitleSlugLen {
		slug = strings.Trim(slug[:maxTitleSlugLen], "-.")
	}

	if slug == "" {
		slug = "pr"
	}

	return fmt.Sprintf("%s/%s/%s-%d", prefix, targetBranch, slug, now.Unix())
}
