package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "--", FormatETA(0))
	assert.Equal(t, "--", FormatETA(-time.Second))
	assert.Equal(t, "45s", FormatETA(45*time.Second))
	assert.Equal(t, "2m 05s", FormatETA(125*time.Second))
	assert.Equal(t, "1h 01m 05s", FormatETA(3665*time.Second))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "1,000", FormatCount(1000))
	assert.Equal(t, "48,917", FormatCount(48917))
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "-1,000", FormatCount(-1000))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "", ProgressBar(0.5, 0))
	assert.Equal(t, "□□□□", ProgressBar(0, 4))
	assert.Equal(t, "▪▪□□", ProgressBar(0.5, 4))
	assert.Equal(t, "▪▪▪▪", ProgressBar(1, 4))
	assert.Equal(t, "▪▪▪▪", ProgressBar(1.5, 4))
	assert.Equal(t, "□□□□", ProgressBar(-0.1, 4))
}
