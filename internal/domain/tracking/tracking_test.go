package tracking

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/db/sqlite"
)

func TestTrack(t *testing.T) {
	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "t.db"), LogLevel: "silent"})
	require.NoError(t, err)
	defer sqlite.Close(db)

	tr := NewTracker(db)
	ctx := context.Background()
	require.NoError(t, tr.Track(ctx, nil, constants.EventStartLearning, nil))
	require.NoError(t, tr.Track(ctx, UserID(7), constants.EventWordSaved, map[string]interface{}{"word": "银行"}))

	var events []models.Event
	require.NoError(t, db.Order("id").Find(&events).Error)
	require.Len(t, events, 2)

	assert.Nil(t, events[0].UserID)
	assert.Equal(t, "start_learning", events[0].EventName)
	assert.Equal(t, "{}", events[0].EventData)

	require.NotNil(t, events[1].UserID)
	assert.Equal(t, int64(7), *events[1].UserID)
	assert.JSONEq(t, `{"word":"银行"}`, events[1].EventData)
	assert.False(t, events[1].CreatedAt.IsZero())
}
