package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())
	logger.Enable(false)

	usr := user.User{ID: 4, Name: "Alice", Email: "alice@test.cd"}
	args := logger.prepare("boom", []interface{}{errors.New("db down"), usr, map[string]interface{}{"path": "/api"}})
	assert.Len(t, args, 3, "the user is not forwarded as an extra arg")
	assert.Equal(t, "boom", args[0])

	logger.Error("boom", errors.New("db down"), &usr)
	logger.Info("started")
	out := buf.String()
	assert.Contains(t, out, "ERROR: boom")
	assert.Contains(t, out, "db down")
	assert.Contains(t, out, "INFO: started")
}
