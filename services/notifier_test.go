package services

import (
	"context"
	"errors"
	"testing"

	"xp-ledger/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMultiNotifierJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("boom")}
	m := MultiNotifier{ok, nil, failing, NewLogNotifier(logger.Nop())}

	err := m.Notify(context.Background(), Notification{UserID: "u1", Kind: KindXPCredited})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("joined error: got %v", err)
	}
	if len(ok.kinds()) != 1 || len(failing.kinds()) != 1 {
		t.Fatalf("every notifier should be called")
	}
}

func TestRecordCreditOutcomes(t *testing.T) {
	before := testutil.ToFloat64(CreditsTotal.WithLabelValues("metrics-test", "limit_reached"))
	RecordCredit("metrics-test", &CreditResult{LimitReached: true}, nil)
	if got := testutil.ToFloat64(CreditsTotal.WithLabelValues("metrics-test", "limit_reached")); got != before+1 {
		t.Fatalf("limit_reached counter: want=%v got=%v", before+1, got)
	}

	xpBefore := testutil.ToFloat64(XPAwardedTotal.WithLabelValues("metrics-test"))
	RecordCredit("metrics-test", &CreditResult{Credited: true, Amount: 7}, nil)
	if got := testutil.ToFloat64(XPAwardedTotal.WithLabelValues("metrics-test")); got != xpBefore+7 {
		t.Fatalf("awarded xp: want=%v got=%v", xpBefore+7, got)
	}

	errBefore := testutil.ToFloat64(CreditsTotal.WithLabelValues("metrics-test", "error"))
	RecordCredit("metrics-test", nil, errors.New("db down"))
	if got := testutil.ToFloat64(CreditsTotal.WithLabelValues("metrics-test", "error")); got != errBefore+1 {
		t.Fatalf("error counter: want=%v got=%v", errBefore+1, got)
	}
}
