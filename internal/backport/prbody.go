package backport

import (
	"fmt"
	"regexp"
	"strings"
)

// NoNotesMarker is used in the backport PR body when the origin PR body
// contains no notes line.
const NoNotesMarker = "Notes: no-notes"

var notesLineRe = regexp.MustCompile(`(?im)^notes:.*$`)

// issueClosingRefRe matches lines containing an issue-closing keyword
// followed by an issue URL of the given repository.
func issueClosingRefRe(owner, repo string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(
		`(?im)^.*\b(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?):?\s+%s/%s/%s/issues/[0-9]+.*$`,
		regexp.QuoteMeta("https://github.com"),
		regexp.QuoteMeta(owner),
		regexp.QuoteMeta(repo),
	))
}

// backportPRBody composes the body of the backport pull request.
// It references the origin PR, carries over all notes lines from the origin
// PR body or the NoNotesMarker when it contains none, and carries over
// issue-closing references that point to issues of the origin repository.
func backportPRBody(owner, repo string, originPRNumber int, originBody string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Automated backport of #%d.\n", originPRNumber)

	notes := notesLineRe.FindAllString(originBody, -1)
	if len(notes) == 0 {
		b.WriteString("\n" + NoNotesMarker + "\n")
	} else {
		b.WriteString("\n")
		for _, line := range notes {
			b.WriteString(strings.TrimSpace(line) + "\n")
		}
	}

	refs := issueClosingRefRe(owner, repo).FindAllString(originBody, -1)
	if len(refs) > 0 {
		b.WriteString("\n")
		for _, line := range refs {
			b.WriteString(strings.TrimSpace(line) + "\n")
		}
	}

	return b.String()
}
