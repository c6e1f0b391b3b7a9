package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Create a new registry for isolated testing
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}

	if m.ClientsConnected == nil {
		t.Error("ClientsConnected metric is nil")
	}
	if m.MessagesRelayed == nil {
		t.Error("MessagesRelayed metric is nil")
	}
	if m.AdmissionRejects == nil {
		t.Error("AdmissionRejects metric is nil")
	}
}

func TestRecordAdmitAndDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordAdmit()
	m.RecordAdmit()
	m.RecordAdmit()

	if got := testutil.ToFloat64(m.ClientsConnected); got != 3 {
		t.Errorf("ClientsConnected = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ClientsTotal); got != 3 {
		t.Errorf("ClientsTotal = %v, want 3", got)
	}

	m.RecordDisconnect(DisconnectLeave)
	m.RecordDisconnect(DisconnectTransport)

	if got := testutil.ToFloat64(m.ClientsConnected); got != 1 {
		t.Errorf("ClientsConnected after disconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClientDisconnects.WithLabelValues(DisconnectLeave)); got != 1 {
		t.Errorf("ClientDisconnects[leave] = %v, want 1", got)
	}
}

func TestRecordReject(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordReject(RejectInvalidKey)
	m.RecordReject(RejectInvalidKey)
	m.RecordReject(RejectIDTaken)

	if got := testutil.ToFloat64(m.AdmissionRejects.WithLabelValues(RejectInvalidKey)); got != 2 {
		t.Errorf("AdmissionRejects[invalid_key] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AdmissionRejects.WithLabelValues(RejectIDTaken)); got != 1 {
		t.Errorf("AdmissionRejects[id_taken] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClientsConnected); got != 0 {
		t.Errorf("ClientsConnected = %v, want 0 (rejects never register)", got)
	}
}

func TestRecordRelayed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordRelayed("OFFER")
	m.RecordRelayed("OFFER")
	m.RecordRelayed("CANDIDATE")
	m.RecordRelayError("target_absent")

	if got := testutil.ToFloat64(m.MessagesRelayed.WithLabelValues("OFFER")); got != 2 {
		t.Errorf("MessagesRelayed[OFFER] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesRelayed.WithLabelValues("CANDIDATE")); got != 1 {
		t.Errorf("MessagesRelayed[CANDIDATE] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RelayErrors.WithLabelValues("target_absent")); got != 1 {
		t.Errorf("RelayErrors[target_absent] = %v, want 1", got)
	}
}

func TestRecordLiveness(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHeartbeat()
	m.RecordHeartbeat()
	m.RecordExpired()
	m.RecordMalformed()

	if got := testutil.ToFloat64(m.HeartbeatsRecv); got != 2 {
		t.Errorf("HeartbeatsRecv = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ClientsExpired); got != 1 {
		t.Errorf("ClientsExpired = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesMalformed); got != 1 {
		t.Errorf("MessagesMalformed = %v, want 1", got)
	}
}

func TestDefault_Singleton(t *testing.T) {
	m1 := Default()
	m2 := Default()
	if m1 != m2 {
		t.Error("Default() should return the same instance")
	}
}
