package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
)

func testNote() Notification {
	return Notification{
		Alarm: alarm.Alarm{
			ID:          7,
			AssetClass:  alarm.AssetCrypto,
			AssetSymbol: "BTC-USD",
			Type:        alarm.TypePrice,
			Email:       "user@example.com",
		},
		Price:       decimal.NewFromInt(50001),
		Reason:      "price 50001 crossed above target 50000",
		TriggeredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSubjectAndBody(t *testing.T) {
	note := testNote()

	if got := Subject(note); got != "Financial Alarm Triggered: BTC-USD" {
		t.Fatalf("主题不正确: %s", got)
	}

	body := Body(note)
	for _, want := range []string{"BTC-USD", "price", "50001", "2026-01-02T03:04:05Z"} {
		if !strings.Contains(body, want) {
			t.Fatalf("正文缺少 %q:\n%s", want, body)
		}
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("alerts@example.com", testNote())
	if !strings.Contains(msg, "To: user@example.com\r\n") {
		t.Fatalf("缺少收件人头: %s", msg)
	}
	if !strings.Contains(msg, "Subject: Financial Alarm Triggered: BTC-USD\r\n") {
		t.Fatalf("缺少主题头: %s", msg)
	}
	if !strings.Contains(msg, "\r\n\r\n") {
		t.Fatal("头与正文之间应有空行")
	}
}

type flakyNotifier struct {
	failures int
	calls    int
}

func (f *flakyNotifier) Notify(ctx context.Context, note Notification) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient delivery failure")
	}
	return nil
}

func TestRetryNotifierRecovers(t *testing.T) {
	flaky := &flakyNotifier{failures: 2}
	notifier := WithRetry(flaky, 3, time.Millisecond, testLogger())

	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("第三次尝试应成功: %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("期望 3 次尝试, 实际 %d", flaky.calls)
	}
}

func TestRetryNotifierExhaustsBudget(t *testing.T) {
	flaky := &flakyNotifier{failures: 10}
	notifier := WithRetry(flaky, 3, time.Millisecond, testLogger())

	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("超出重试预算应报错")
	}
	if flaky.calls != 3 {
		t.Fatalf("重试应止于预算 3, 实际 %d", flaky.calls)
	}
}

func TestRetryNotifierHonoursContext(t *testing.T) {
	flaky := &flakyNotifier{failures: 10}
	notifier := WithRetry(flaky, 5, 50*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := notifier.Notify(ctx, testNote())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("取消后应返回 context 错误, 实际 %v", err)
	}
	if flaky.calls >= 5 {
		t.Fatalf("取消后不应继续重试, 实际 %d 次", flaky.calls)
	}
}
