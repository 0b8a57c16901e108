package natsutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/plaenen/shopcore/pkg/natsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedServer(t *testing.T) {
	srv, err := natsutil.StartEmbeddedServer(natsutil.WithStoreDir(t.TempDir()))
	require.NoError(t, err)

	nc, err := srv.Connect()
	require.NoError(t, err)

	js, err := nc.JetStream()
	require.NoError(t, err)
	_, err = js.AccountInfo()
	require.NoError(t, err, "JetStream must be enabled")
	nc.Close()

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		srv.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown timed out")
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc := natsutil.NewService(nil, natsutil.WithStoreDir(t.TempDir()))
	assert.Equal(t, "embedded-nats", svc.Name())

	assert.Error(t, svc.HealthCheck(ctx))
	assert.Empty(t, svc.URL())

	require.NoError(t, svc.Start(ctx))
	assert.NotEmpty(t, svc.URL())
	assert.NoError(t, svc.HealthCheck(ctx))
	require.NoError(t, svc.Stop(ctx))
}
