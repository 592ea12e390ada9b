package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestConnectRedisRejectsBadInput(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "", "")
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "not-a-url", "")
	require.Error(t, err)
}

func TestConnectSelectsDriver(t *testing.T) {
	db, err := Connect("sqlite", filepath.Join(t.TempDir(), "evaluator.db"))
	require.NoError(t, err)
	require.Equal(t, "sqlite", db.Dialector.Name())

	_, err = Connect("mysql", "dsn")
	require.Error(t, err)

	_, err = Connect("postgres", "")
	require.Error(t, err)
}

func TestConnectNATSRequiresURL(t *testing.T) {
	_, err := ConnectNATS("", "evaluator")
	require.Error(t, err)
}
