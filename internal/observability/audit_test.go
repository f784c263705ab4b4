package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_RecordToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))

	RecordSessionAudit(context.Background(), "session_cleared", "sess-1", "success", map[string]interface{}{
		"messages_removed": 4,
	})
	RecordConfigAudit(context.Background(), "config_reloaded", map[string]interface{}{
		"path": "/tmp/coursebot.json",
	})

	require.NoError(t, GetAuditLogger().Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "session_cleared")
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, `"status":"success"`)
	assert.Contains(t, out, "config_reloaded")
	assert.Contains(t, out, `"type":"config"`)
}

func TestGetAuditLogger_DefaultInstance(t *testing.T) {
	// Must never return nil, even without initialization
	assert.NotNil(t, GetAuditLogger())
}
