package export

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporter_Historical_1000Bars_TenChunks(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	tr.succeedWith(`{"status":"ok"}`)
	e := NewExporter(src, fakeEncoder{}, tr)

	s := settings(ModeHistorical)
	s.HistoricalBars = 1000

	rep := e.Tick(ctx, s, 999)
	require.True(t, rep.HistoricalActive)
	for i := 0; i < 100 && rep.HistoricalActive; i++ {
		rep = e.Tick(ctx, s, 999)
	}
	require.False(t, rep.HistoricalActive, "export should terminate")

	want := make([]string, 0, 10)
	for c := 0; c < 1000; c += 100 {
		want = append(want, fmt.Sprintf("batch:%d-%d:historical_export", c, c+99))
	}
	assert.Equal(t, want, tr.bodies())
	assert.Equal(t, 1000, rep.TotalSent)
	assert.Equal(t, 0, rep.HistoricalCursor)
	assert.Equal(t, " (Sent: 1000)", rep.Status)

	// 完成后不会自动重新触发
	for i := 0; i < 5; i++ {
		e.Tick(ctx, s, 999)
	}
	assert.Len(t, tr.posts, 10)

	req := tr.posts[0]
	assert.Equal(t, "http://ingest.local/api/v1/market-data/batch", req.URL)
	assert.Equal(t, "batch", req.Kind)
	assert.Equal(t, "application/json", req.Headers["Content-Type"])
	assert.NotContains(t, req.Headers, "X-API-Key")
}

func TestExporter_Historical_StartsAtAvailableMinusTarget(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1250)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)

	s := settings(ModeHistorical)
	s.HistoricalBars = 1000
	s.APIKey = "secret"
	rep := e.Tick(ctx, s, 1249)

	assert.Equal(t, 250, rep.HistoricalCursor)
	assert.Equal(t, []string{"batch:250-349:historical_export"}, tr.bodies())
	assert.Equal(t, "secret", tr.posts[0].Headers["X-API-Key"])
	assert.Equal(t, StatusSending, rep.Status)
}

func TestExporter_Realtime_SendsJustClosedBarOnce(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(49) // 0..47 已收盘，48 构建中
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeRealtime)

	rep := e.Tick(ctx, s, 48)
	assert.Equal(t, 48, rep.LastSentIndex, "session starts at the most recent bar")
	assert.Empty(t, tr.posts)

	src.append(2) // 48、49 收盘，50 构建中
	rep = e.Tick(ctx, s, 50)
	require.Equal(t, []string{"single:49"}, tr.bodies())
	assert.Equal(t, 49, rep.LastSentIndex)
	assert.Equal(t, 1, rep.TotalSent)
	assert.Equal(t, "http://ingest.local/api/v1/market-data/", tr.posts[0].URL)
	assert.Equal(t, "single", tr.posts[0].Kind)

	tr.resolve(1, Outcome{Status: OutcomeSuccess, Body: []byte("ok")})
	for i := 0; i < 4; i++ {
		rep = e.Tick(ctx, s, 50)
	}
	assert.Len(t, tr.posts, 1, "same position must not resend")
	assert.Equal(t, " (Sent: 1)", rep.Status)
	assert.Equal(t, PhaseIdle.String(), rep.Phase)
}

func TestExporter_Realtime_LookbackPath(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(10)
	tr := newFakeTransport()
	tr.succeedWith("ok")
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeRealtime)

	e.Tick(ctx, s, 9)
	src.append(3) // 9..11 收盘，12 构建中

	e.Tick(ctx, s, 10)
	assert.Equal(t, []string{"single:10"}, tr.bodies())

	// 12 还没收盘，位置在 11 时 11 可发；位置在 12 时发 11 已发过
	e.Tick(ctx, s, 11) // poll -> completed
	e.Tick(ctx, s, 11) // idle -> send 11
	e.Tick(ctx, s, 12)
	e.Tick(ctx, s, 12)
	assert.Equal(t, []string{"single:10", "single:11"}, tr.bodies())
}

func TestExporter_Realtime_RejectKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(10)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeRealtime)

	e.Tick(ctx, s, 9)
	src.append(2) // 9、10 收盘，11 构建中

	tr.reject = true
	rep := e.Tick(ctx, s, 11)
	assert.Equal(t, 9, rep.LastSentIndex)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 0, rep.TotalSent)
	assert.Equal(t, " (Failed: 1)", rep.Status)

	tr.reject = false
	e.Tick(ctx, s, 11)
	assert.Equal(t, []string{"single:10"}, tr.bodies(), "same bar retried on the next opportunity")
}

func TestExporter_ForceSend(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(5)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeRealtime)
	s.ForceSend = true

	e.Tick(ctx, s, 4)
	assert.Empty(t, tr.posts, "position already at watermark")

	tr.reject = true
	rep := e.Tick(ctx, s, 3)
	assert.Equal(t, -1, rep.LastSentIndex, "forced reject rolls back the watermark")

	tr.reject = false
	rep = e.Tick(ctx, s, 3)
	assert.Equal(t, []string{"single:3"}, tr.bodies())
	assert.Equal(t, 3, rep.LastSentIndex)
}

func TestExporter_Batch_WindowAndWatermark(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(60)
	tr := newFakeTransport()
	tr.succeedWith("ok")
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeBatch)

	rep := e.Tick(ctx, s, 59)
	assert.Equal(t, 59, rep.LastSentIndex)

	for pos := 60; pos < 109; pos++ {
		src.append(1)
		e.Tick(ctx, s, pos)
	}
	assert.Empty(t, tr.posts, "never send fewer than batch size new bars")

	src.append(1)
	rep = e.Tick(ctx, s, 109)
	require.Equal(t, []string{"batch:60-109:batch"}, tr.bodies())
	assert.Equal(t, 109, rep.LastSentIndex)
	assert.Equal(t, 50, rep.TotalSent)
	assert.Equal(t, "http://ingest.local/api/v1/market-data/batch", tr.posts[0].URL)

	for pos := 110; pos < 160; pos++ {
		src.append(1)
		rep = e.Tick(ctx, s, pos)
	}
	assert.Equal(t, []string{"batch:60-109:batch", "batch:110-159:batch"}, tr.bodies())
	assert.Equal(t, 159, rep.LastSentIndex)
}

func TestExporter_DisableWhilePending(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)

	e.Tick(ctx, s, 999)
	require.Equal(t, PhasePending, e.Phase())

	off := s
	off.Enabled = false
	rep := e.Tick(ctx, off, 999)
	assert.Equal(t, StatusDisabled, rep.Status)
	assert.Nil(t, e.State())
	assert.Equal(t, PhaseIdle, e.Phase())
	assert.True(t, tr.forgotten[1])

	// 被丢弃的请求晚到的成功结果被忽略
	tr.resolve(1, Outcome{Status: OutcomeSuccess, Body: []byte("late")})

	rep = e.Tick(ctx, s, 999)
	st := e.State()
	require.NotNil(t, st)
	assert.Equal(t, 0, st.FailedRequests)
	assert.Equal(t, 100, st.TotalSent, "fresh session: only the new chunk")
	assert.Equal(t, 0, st.Historical.Cursor)
	assert.Len(t, tr.posts, 2)
	assert.Equal(t, StatusSending, rep.Status)
}

func TestExporter_StallBreaking_AfterFailures(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	tr.failWith(errors.New("503"))
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)

	ticks := 0
	for ticks < 50 {
		e.Tick(ctx, s, 999)
		ticks++
		if e.State().Historical.Cursor != 0 {
			break
		}
	}
	st := e.State()
	assert.Equal(t, 12, ticks, "six failed round trips")
	assert.Equal(t, 100, st.Historical.Cursor)
	assert.Equal(t, 0, st.FailedRequests)
	assert.True(t, st.Historical.Active)

	bodies := tr.bodies()
	require.Len(t, bodies, 7)
	assert.Equal(t, "batch:0-99:historical_export", bodies[5])
	assert.Equal(t, "batch:100-199:historical_export", bodies[6])
}

func TestExporter_StallBreaking_OnRejects(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(150)
	tr := newFakeTransport()
	tr.reject = true
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)
	s.HistoricalBars = 100

	for i := 0; i < 6; i++ {
		e.Tick(ctx, s, 149)
	}
	st := e.State()
	assert.Equal(t, 50, st.Historical.Cursor)
	assert.Equal(t, 6, st.FailedRequests)

	e.Tick(ctx, s, 149)
	st = e.State()
	assert.Equal(t, 149, st.Historical.Cursor, "skip is clamped inside the bar range")
	assert.Equal(t, 1, st.FailedRequests, "counter cleared, then the retry at the new cursor is rejected")
}

func TestExporter_StallIgnoresFailuresFromRealtime(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	tr.reject = true
	e := NewExporter(src, fakeEncoder{}, tr)

	rt := settings(ModeRealtime)
	rt.ForceSend = true
	for i := 0; i < 8; i++ {
		e.Tick(ctx, rt, 500)
	}
	require.Equal(t, 8, e.State().FailedRequests)
	require.Empty(t, tr.posts)

	// 切到历史模式：第一段必须先发出去，请求挂起期间也不能被断流跳过
	tr.reject = false
	s := settings(ModeHistorical)
	rep := e.Tick(ctx, s, 999)
	assert.Equal(t, 0, rep.HistoricalCursor)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, []string{"batch:0-99:historical_export"}, tr.bodies())

	rep = e.Tick(ctx, s, 999)
	assert.Equal(t, 0, rep.HistoricalCursor)
	assert.Equal(t, PhasePending.String(), rep.Phase)
	assert.Len(t, tr.posts, 1)

	tr.resolve(1, Outcome{Status: OutcomeSuccess, Body: []byte("ok")})
	rep = e.Tick(ctx, s, 999)
	assert.Equal(t, 100, rep.HistoricalCursor)
}

func TestExporter_ManualTriggerAfterFailuresSendsFirstChunk(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	tr.reject = true
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)
	s.HistoricalBars = 500

	for i := 0; i < 6; i++ {
		e.Tick(ctx, s, 999)
	}
	require.Equal(t, 6, e.State().FailedRequests)
	require.Equal(t, 500, e.State().Historical.Cursor)

	tr.reject = false
	s.ManualTrigger = true
	rep := e.Tick(ctx, s, 999)
	assert.True(t, rep.TriggerConsumed)
	assert.Equal(t, 500, rep.HistoricalCursor, "new run starts at available-target")
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, []string{"batch:500-599:manual_historical_export"}, tr.bodies())

	// 上一轮的失败不会在新一轮请求挂起时触发跳段
	rep = e.Tick(ctx, s, 999)
	assert.Equal(t, 500, rep.HistoricalCursor)
	assert.Len(t, tr.posts, 1)
}

func TestExporter_EmptyResponseCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	tr.succeedWith("")
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)

	e.Tick(ctx, s, 999)
	rep := e.Tick(ctx, s, 999)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 0, rep.HistoricalCursor)
	assert.Equal(t, " (Failed: 1)", rep.Status)

	rep = e.Tick(ctx, s, 999)
	assert.Equal(t, []string{"batch:0-99:historical_export", "batch:0-99:historical_export"}, tr.bodies())
	assert.Equal(t, 200, rep.TotalSent, "sent counter is optimistic")
}

func TestExporter_ManualTriggerEdge(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(300)
	tr := newFakeTransport()
	tr.succeedWith("ok")
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)
	s.HistoricalBars = 100
	s.ManualTrigger = true

	rep := e.Tick(ctx, s, 299)
	assert.True(t, rep.TriggerConsumed)
	assert.Equal(t, []string{"batch:200-299:manual_historical_export"}, tr.bodies())

	rep = e.Tick(ctx, s, 299)
	assert.False(t, rep.TriggerConsumed)
	assert.False(t, rep.HistoricalActive)
	assert.False(t, e.State().Historical.ManualLatched)

	// 输入保持高电平不会重复触发；拉低也不会补一次自动触发
	e.Tick(ctx, s, 299)
	s.ManualTrigger = false
	e.Tick(ctx, s, 299)
	assert.Len(t, tr.posts, 1)

	s.ManualTrigger = true
	rep = e.Tick(ctx, s, 299)
	assert.True(t, rep.TriggerConsumed)
	assert.Len(t, tr.posts, 2)
}

func TestExporter_ManualTriggerRestartsActiveRun(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)

	e.Tick(ctx, s, 999) // 自动触发，请求挂起
	s.ManualTrigger = true
	rep := e.Tick(ctx, s, 999)

	assert.True(t, rep.TriggerConsumed)
	assert.True(t, tr.forgotten[1], "old run's request is dropped")
	assert.Equal(t, "batch:0-99:manual_historical_export", tr.bodies()[1])
	assert.Equal(t, 100, rep.TotalSent)
}

func TestExporter_ModeSwitchIdempotent(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(100)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)

	e.Tick(ctx, settings(ModeRealtime), 99)
	e.Tick(ctx, settings(ModeHistorical), 99)
	st := e.State()
	assert.Equal(t, -1, st.Realtime.LastSentIndex)
	assert.True(t, st.Historical.Active)

	e.Tick(ctx, settings(ModeRealtime), 99)
	once := *e.State()
	assert.Equal(t, 99, once.Realtime.LastSentIndex)
	assert.Equal(t, HistoricalState{}, once.Historical)

	e.Tick(ctx, settings(ModeRealtime), 99)
	twice := *e.State()
	assert.Equal(t, once, twice)
}

func TestExporter_SwitchToBatchSeedsWatermark(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(100)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)

	e.Tick(ctx, settings(ModeRealtime), 99)
	e.Tick(ctx, settings(ModeBatch), 99)
	st := e.State()
	assert.Equal(t, 99, st.Batch.LastSentIndex, "taken over from realtime")
	assert.Equal(t, -1, st.Realtime.LastSentIndex)

	e.Tick(ctx, settings(ModeHistorical), 99)
	e.Tick(ctx, settings(ModeBatch), 99)
	assert.Equal(t, -1, e.State().Batch.LastSentIndex, "nothing to take over from historical")
}

func TestExporter_ResultAfterModeSwitchDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)

	e.Tick(ctx, settings(ModeHistorical), 999)
	e.Tick(ctx, settings(ModeRealtime), 999)
	tr.resolve(1, Outcome{Status: OutcomeSuccess, Body: []byte("ok")})
	rep := e.Tick(ctx, settings(ModeRealtime), 999)

	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, 0, e.State().Historical.Cursor)
	assert.False(t, rep.HistoricalActive)
}

func TestExporter_EncodeErrorIsRejection(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{fail: true}, tr)

	rep := e.Tick(ctx, settings(ModeHistorical), 999)
	assert.Equal(t, 1, rep.Failed)
	assert.Empty(t, tr.posts)
	assert.Equal(t, PhaseIdle.String(), rep.Phase)
}

func TestExporter_NoEndpointNoDispatch(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1000)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)
	s.Endpoint = " "

	rep := e.Tick(ctx, s, 999)
	assert.Empty(t, tr.posts)
	assert.Equal(t, StatusActive, rep.Status)
}

func TestExporter_HistoricalWaitsForBars(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(0)
	tr := newFakeTransport()
	e := NewExporter(src, fakeEncoder{}, tr)
	s := settings(ModeHistorical)

	rep := e.Tick(ctx, s, -1)
	assert.False(t, rep.HistoricalActive)
	assert.False(t, e.State().Historical.AutoFired)

	src.append(120)
	rep = e.Tick(ctx, s, 119)
	assert.True(t, rep.HistoricalActive)
	assert.Equal(t, []string{"batch:0-99:historical_export"}, tr.bodies())
}
