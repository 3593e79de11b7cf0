package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/willow/pkg/context"
	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/models"
)

type recordingPublisher struct {
	batches [][]*kafka.TreeEvent
	err     error
}

func (p *recordingPublisher) PublishTreeEvents(_ context.Context, events []*kafka.TreeEvent) error {
	p.batches = append(p.batches, events)
	return p.err
}

func newTestEmitter(publisher Publisher) *Emitter {
	return NewEmitter(publisher, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestEmit_StampsActorAndPayload(t *testing.T) {
	publisher := &recordingPublisher{}
	emitter := newTestEmitter(publisher)

	ctx := appctx.SetUserID(context.Background(), "user-1")
	ctx = appctx.SetRequestID(ctx, "req-1")
	treeID := uuid.New()
	tree := &models.Tree{ID: treeID, Name: "Smiths"}

	emitter.Emit(ctx, Event{Type: EventTypeTreeCreated, TreeID: treeID, Data: TreeEventData{Tree: tree}})

	require.Len(t, publisher.batches, 1)
	require.Len(t, publisher.batches[0], 1)
	event := publisher.batches[0][0]
	assert.Equal(t, "tree.created", event.EventType)
	assert.Equal(t, treeID.String(), event.TreeID)
	assert.Equal(t, "user-1", event.Actor)
	assert.Equal(t, "req-1", event.RequestID)

	var data TreeEventData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "Smiths", data.Tree.Name)
}

func TestEmit_PublishFailureIsSwallowed(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	emitter := newTestEmitter(publisher)

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), Event{Type: EventTypeNodeCreated, TreeID: uuid.New()})
	})
	assert.Len(t, publisher.batches, 1)
}

func TestEmit_NoPublisher(t *testing.T) {
	var nilEmitter *Emitter
	assert.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), Event{Type: EventTypeTreeCreated, TreeID: uuid.New()})
		newTestEmitter(nil).Emit(context.Background(), Event{Type: EventTypeTreeCreated, TreeID: uuid.New()})
	})
}
