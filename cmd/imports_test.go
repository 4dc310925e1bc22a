package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/mission-sync/internal/model"
)

func TestFormatImportsList(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	finished := now.Add(2 * time.Minute)
	imports := []model.Import{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			PublisherID: "pub-1",
			Status:      model.ImportSuccess,
			StartedAt:   now,
			FinishedAt:  &finished,
			Counts:      model.ImportCounts{Received: 40, Created: 5, Updated: 2, Deleted: 1},
		},
		{
			ID:          "def12345-6789-0000-0000-000000000000",
			PublisherID: "pub-2",
			Status:      model.ImportRunning,
			StartedAt:   now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatImportsList(&buf, imports)

	output := buf.String()
	assert.Contains(t, output, "PUBLISHER")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "SUCCESS")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "2024-06-15 10:30")
	assert.Contains(t, output, "RUNNING")
}

func TestFormatImportsList_LongError(t *testing.T) {
	imports := []model.Import{{
		ID:          "abc",
		PublisherID: "pub-1",
		Status:      model.ImportFailed,
		StartedAt:   time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC),
		Error:       "importer: fetch feed: feed: GET https://example.org/feed.xml returned 503",
	}}

	var buf bytes.Buffer
	formatImportsList(&buf, imports)

	assert.Contains(t, buf.String(), "...")
	assert.Contains(t, buf.String(), "FAILED")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefgh-1234"))
	assert.Equal(t, "short", truncateID("short"))
}
