package safe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafe_GoRecover_CallsOnPanic(t *testing.T) {
	got := make(chan any, 1)
	GoRecover(context.Background(), func(context.Context) {
		panic("boom")
	}, func(r any) { got <- r })

	select {
	case r := <-got:
		assert.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("onPanic 没有被调用")
	}
}

func TestSafe_Go_Runs(t *testing.T) {
	done := make(chan struct{})
	Go(func() { close(done) })
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
