package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubapi/apperr"
)

func TestRequireAdmin(t *testing.T) {
	err := RequireAdmin(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	ctx := WithAdmin(context.Background(), Identity{Name: "admin"})
	assert.NoError(t, RequireAdmin(ctx))

	id, ok := AdminFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "admin", id.Name)
	assert.False(t, id.Anonymous)
}
