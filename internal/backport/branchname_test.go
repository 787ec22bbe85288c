package backport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTempBranchName(t *testing.T) {
	now := time.Unix(1700000000, 0)

	name := tempBranchName("backport", "release-5.0", "Fix the Foo Bar!", now)
	assert.Equal(t, "backport/release-5.0/fix-the-foo-bar-1700000000", name)
}

func TestTempBranchNameTruncatesLongTitles(t *testing.T) {
	now := time.Unix(1700000000, 0)

	name := tempBranchName("backport", "main",
		"a very long pull request title that exceeds the slug length limit by far",
		now,
	)

	assert.Equal(t, "backport/main/a-very-long-pull-request-title-that-exce-1700000000", name)
}

func TestTempBranchNameEmptyTitle(t *testing.T) {
	now := time.Unix(1700000000, 0)

	name := tempBranchName("backport", "main", "!!!", now)
	assert.Equal(t, "backport/main/pr-1700000000", name)
}
