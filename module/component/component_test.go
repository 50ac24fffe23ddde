package component_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membercoin/membernode/module"
	"github.com/membercoin/membernode/module/component"
	"github.com/membercoin/membernode/module/irrecoverable"
	"github.com/membercoin/membernode/utils/unittest"
)

func TestComponentManager_ReadyDone(t *testing.T) {
	ran := make(chan struct{}, 2)
	worker := func(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
		ready()
		ran <- struct{}{}
		<-ctx.Done()
	}
	cm := component.NewComponentManagerBuilder().
		AddWorker(worker).
		AddWorker(worker).
		Build()

	ctx, cancel := context.WithCancel(context.Background())
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
	cm.Start(signalerCtx)

	unittest.RequireCloseBefore(t, cm.Ready(), time.Second, "component not ready")
	assert.Len(t, ran, 2)

	cancel()
	unittest.RequireCloseBefore(t, cm.ShutdownSignal(), time.Second, "no shutdown signal")
	unittest.RequireCloseBefore(t, cm.Done(), time.Second, "component not done")

	select {
	case err := <-errChan:
		t.Fatalf("unexpected error: %v", err)
	default:
	}

	assert.PanicsWithValue(t, module.ErrMultipleStartup, func() {
		cm.Start(signalerCtx)
	})
}

func TestComponentManager_ThrowPropagates(t *testing.T) {
	expected := errors.New("boom")
	cm := component.NewComponentManagerBuilder().
		AddWorker(func(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
			ready()
			ctx.Throw(expected)
		}).
		AddWorker(func(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
			ready()
			<-ctx.Done()
		}).
		Build()

	signalerCtx, errChan := irrecoverable.WithSignaler(context.Background())
	cm.Start(signalerCtx)

	select {
	case err := <-errChan:
		require.ErrorIs(t, err, expected)
	case <-time.After(time.Second):
		t.Fatal("error was not propagated")
	}
	unittest.RequireCloseBefore(t, cm.Done(), time.Second, "component not done after throw")
}
