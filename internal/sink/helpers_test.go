package sink

import (
	"time"

	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testRecords() []event.Record {
	ev1 := event.New(event.KindStartTestCase, "worker-1", zapcore.InfoLevel, "login",
		event.WithTimestamp(testTime), event.WithEntityID(7), event.WithName("login"))
	ev1.ID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	ev2 := event.New(event.KindMessage, "worker-1", zapcore.WarnLevel, "slow response",
		event.WithTimestamp(testTime.Add(time.Second)),
		event.WithAttributes(map[string]string{"latency_ms": "812"}))
	ev2.ID = uuid.MustParse("22222222-2222-2222-2222-222222222222")

	return []event.Record{
		{Event: ev1, RunID: 1, SuiteID: 2, TestCaseID: 7, CorrectedTime: testTime.Add(time.Minute)},
		{Event: ev2, RunID: 1, SuiteID: 2, TestCaseID: 7, CorrectedTime: testTime.Add(time.Minute + time.Second)},
	}
}
