package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

func capture(t *testing.T, emit func(ctx context.Context)) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.New(log.Config{Output: &buf}))
	emit(ctx)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogWithTarget(t *testing.T) {
	entry := capture(t, func(ctx context.Context) {
		LogWithTarget(ctx, ActionJoinRoom, "alice", "lobby", "joined room")
	})

	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionJoinRoom, entry[FieldAction])
	assert.Equal(t, "alice", entry[log.FieldUsername])
	assert.Equal(t, "lobby", entry[FieldTargetID])
	assert.Equal(t, "joined room", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogWithDetail(t *testing.T) {
	entry := capture(t, func(ctx context.Context) {
		LogWithDetail(ctx, ActionDeleteGroup, "bob", "go (2 entries)", "group deleted")
	})

	assert.Equal(t, "go (2 entries)", entry[FieldDetail])
	assert.NotContains(t, entry, FieldTargetID)
}
