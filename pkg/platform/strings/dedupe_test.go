package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	assert.Equal(t,
		[]string{"https://cdn/e1", "https://cdn/e2"},
		DedupeAndTrim([]string{" https://cdn/e1", "https://cdn/e2", "https://cdn/e1 ", "", "   "}))
}

func TestDedupeAndTrimPreservesOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"c", "a", "b"},
		DedupeAndTrim([]string{"c", "a", "b", "a", "c"}))
}

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Equal(t,
		[]string{"chat", "upload"},
		DedupeAndTrimLower([]string{" Chat ", "UPLOAD", "chat"}))
}

func TestDedupeEmptyInput(t *testing.T) {
	assert.Empty(t, DedupeAndTrim(nil))
	assert.Empty(t, DedupeAndTrimLower([]string{"", "  "}))
}
