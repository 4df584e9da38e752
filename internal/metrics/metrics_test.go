package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Deposit("ok")
	r.Withdrawal("ok", 10)
	r.BatchCycle("skipped")
	r.OracleFallback()
	r.Alert("retries_exhausted")
}

func TestRecorder_ExposesCounters(t *testing.T) {
	r := NewRecorder()
	r.Deposit("ok")
	r.Withdrawal("ok", 1500)
	r.Withdrawal("service_unavailable", 0)
	r.Alert("batch_swap_failed")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`settlement_deposits_total{outcome="ok"} 1`,
		`settlement_withdrawals_total{outcome="service_unavailable"} 1`,
		`settlement_withdrawn_lamports_total 1500`,
		`settlement_alerts_total{kind="batch_swap_failed"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}
