package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_FromContext(t *testing.T) {
	id, err := FromContext(context.Background())
	require.NoError(t, err)
	require.Equal(t, Default, id)

	id, err = FromContext(WithTenant(context.Background(), "acme"))
	require.NoError(t, err)
	require.Equal(t, "acme", id)
}

func Test_Required(t *testing.T) {
	_, err := Required(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)

	id, err := Required(WithTenant(context.Background(), "acme"))
	require.NoError(t, err)
	require.Equal(t, "acme", id)
}
