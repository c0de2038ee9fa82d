package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{UserID: "u-1", RequestID: "01HX"})

	actor, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u-1", actor.UserID)
	require.Equal(t, "01HX", actor.RequestID)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}
