package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/store/memstore"
	"github.com/wonny/moves/backend/pkg/logger"
)

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(memstore.New().Audit(), logger.NewNop())

	entry, err := rec.Record(ctx, contracts.AuditEvent{
		Action:     contracts.AuditSignalSuppressed,
		EntityType: contracts.EntityThesis,
		EntityID:   42,
		Details:    map[string]interface{}{"gate": contracts.GateConviction, "conviction": 0.65},
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.ActorEngine, entry.Actor)
	require.NotNil(t, entry.EntityID)
	assert.Equal(t, int64(42), *entry.EntityID)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Details, &details))
	assert.Equal(t, "conviction", details["gate"])

	history, err := rec.ByEntity(ctx, contracts.EntityThesis, 42)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRecorder_RequiresAction(t *testing.T) {
	rec := NewRecorder(memstore.New().Audit(), logger.NewNop())

	_, err := rec.Record(context.Background(), contracts.AuditEvent{})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestRecorder_CorrectAppendsReference(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(memstore.New().Audit(), logger.NewNop())

	original, err := rec.Record(ctx, contracts.AuditEvent{Action: contracts.AuditSignalDecided, EntityType: contracts.EntitySignal, EntityID: 7})
	require.NoError(t, err)

	fix, err := rec.Correct(ctx, original.ID, contracts.AuditEvent{
		Actor:      contracts.ActorUser,
		Action:     contracts.AuditSignalDecided,
		EntityType: contracts.EntitySignal,
		EntityID:   7,
		Details:    map[string]interface{}{"note": "decision was reject, not approve"},
	})
	require.NoError(t, err)
	require.NotNil(t, fix.CorrectsID)
	assert.Equal(t, original.ID, *fix.CorrectsID)

	_, err = rec.Correct(ctx, 999, contracts.AuditEvent{Action: "x"})
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	recent, err := rec.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, fix.ID, recent[0].ID)
}
