package xerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXerr_WrapKeepsChain(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, TransportFailure, "")

	assert.Equal(t, TransportFailure, CodeOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "请求失败")

	// 外面再包一层 fmt.Errorf 也能取到码
	outer := fmt.Errorf("post batch: %w", err)
	assert.True(t, Is(outer, TransportFailure))
	assert.Equal(t, "transport", Reason(CodeOf(outer)))
}

func TestXerr_CodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, ServerCommonError, CodeOf(errors.New("plain")))
	assert.Equal(t, RateLimited, CodeOf(NewErrCode(RateLimited)))
	assert.Nil(t, Wrap(nil, BreakerOpen, "x"))
	assert.False(t, Is(nil, OK))
}
