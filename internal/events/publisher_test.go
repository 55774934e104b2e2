package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"talent-match/internal/storage"
)

func TestRoutingKey(t *testing.T) {
	e := storage.AuditEntry{EntityType: "candidate", Action: storage.ActionMerge}
	assert.Equal(t, "candidate.merge", RoutingKey(e))
}

func TestRecorder(t *testing.T) {
	var p Publisher = &Recorder{}
	ctx := context.Background()
	assert.NoError(t, p.Publish(ctx, storage.AuditEntry{ID: "1"}))
	assert.NoError(t, p.Publish(ctx, storage.AuditEntry{ID: "2"}))
	assert.Len(t, p.(*Recorder).Entries(), 2)

	failing := &Recorder{Err: errors.New("broker down")}
	assert.Error(t, failing.Publish(ctx, storage.AuditEntry{ID: "3"}))
	assert.Empty(t, failing.Entries())

	assert.NoError(t, Nop{}.Publish(ctx, storage.AuditEntry{}))
}
