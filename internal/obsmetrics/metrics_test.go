package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGlobalIsSingleton(t *testing.T) {
	a := Global()
	b := Global()
	if a != b {
		t.Fatalf("expected Global() to return the same instance across calls")
	}
}

func TestRecordHostCall(t *testing.T) {
	m := Global()
	m.RecordHostCall("obsmetrics_test_fs", "ok")
	m.RecordHostCall("obsmetrics_test_fs", "ok")
	m.RecordHostCall("obsmetrics_test_fs", "denied")

	if got := testutil.ToFloat64(m.HostCalls.WithLabelValues("obsmetrics_test_fs", "ok")); got != 2 {
		t.Fatalf("expected 2 ok host calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.HostCalls.WithLabelValues("obsmetrics_test_fs", "denied")); got != 1 {
		t.Fatalf("expected 1 denied host call, got %v", got)
	}
}

func TestRecordPolicyDecision(t *testing.T) {
	m := Global()
	m.RecordPolicyDecision("allow", "obsmetrics_test_reason")

	if got := testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("allow", "obsmetrics_test_reason")); got != 1 {
		t.Fatalf("expected 1 allow decision, got %v", got)
	}
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordHostCall("fs", "ok")
	m.RecordPolicyDecision("allow", "default_caps")
	m.SetExtensionsLoaded(3)
	stop := m.StartEventDispatch()
	stop()
}

func TestSetExtensionsLoaded(t *testing.T) {
	m := Global()
	m.SetExtensionsLoaded(5)
	if got := testutil.ToFloat64(m.ExtensionsLoaded); got != 5 {
		t.Fatalf("expected gauge 5, got %v", got)
	}
}
