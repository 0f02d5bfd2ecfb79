package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishSerializesPayload(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "run-events", map[string]string{"run_id": "run-1"})
	require.NoError(t, err)
	require.Equal(t, "local-1", id1)

	id2, err := pub.Publish(context.Background(), "run-events", map[string]string{"run_id": "run-2"})
	require.NoError(t, err)
	require.Equal(t, "local-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "run-events", msgs[0].Topic)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &payload))
	require.Equal(t, "run-1", payload["run_id"])
}

func TestPublishRequiresTopic(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", "payload")
	require.Error(t, err)
	require.Empty(t, pub.Messages())
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "run-events", func() {})
	require.Error(t, err)
	require.Empty(t, pub.Messages())
}

func TestTopicMessagesFilters(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "run-events", "a")
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "alerts", "b")
	require.NoError(t, err)

	msgs := pub.TopicMessages("alerts")
	require.Len(t, msgs, 1)
	require.Equal(t, "local-2", msgs[0].ID)

	msgs[0].Topic = "modified"
	require.Equal(t, "alerts", pub.TopicMessages("alerts")[0].Topic)
}
