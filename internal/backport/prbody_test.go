package backport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackportPRBodyCarriesNotesAndIssueRefs(t *testing.T) {
	originBody := "This improves X.\n\n" +
		"Fixes https://github.com/o/r/issues/42\n" +
		"Notes: improved X\n"

	body := backportPRBody("o", "r", 17, originBody)

	assert.Contains(t, body, "#17")
	assert.Contains(t, body, "Notes: improved X")
	assert.Contains(t, body, "Fixes https://github.com/o/r/issues/42")
	assert.NotContains(t, body, NoNotesMarker)
}

func TestBackportPRBodyUsesNoNotesFallback(t *testing.T) {
	body := backportPRBody("o", "r", 17, "just a description, nothing else")

	assert.Contains(t, body, NoNotesMarker)
}

func TestBackportPRBodyNotesAreCaseInsensitiveAndMultiline(t *testing.T) {
	originBody := "intro\nNOTES: first note\nmore text\nnotes: second note\n"

	body := backportPRBody("o", "r", 3, originBody)

	assert.Contains(t, body, "NOTES: first note")
	assert.Contains(t, body, "notes: second note")
	assert.NotContains(t, body, NoNotesMarker)
}

func TestBackportPRBodyIgnoresForeignIssueRefs(t *testing.T) {
	originBody := "Fixes https://github.com/other/repo/issues/9\n"

	body := backportPRBody("o", "r", 5, originBody)

	assert.NotContains(t, body, "issues/9")
}
