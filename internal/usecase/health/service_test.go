package health

import (
	"context"
	"errors"
	"testing"
)

type pinger struct{ err error }

func (p pinger) Ping(_ context.Context) error { return p.err }

type checker struct{ err error }

func (c checker) HealthCheck(_ context.Context) error { return c.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(pinger{}, pinger{}, checker{})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	for name, res := range report.Checks {
		if res != CheckOK {
			t.Errorf("check %s: expected ok, got %s", name, res)
		}
	}
	if len(report.Checks) != 3 {
		t.Errorf("expected 3 checks, got %d", len(report.Checks))
	}
}

func TestCheck_DegradedOnIndexFailure(t *testing.T) {
	svc := New(pinger{err: errors.New("down")}, pinger{}, checker{})

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}
	if report.Checks["vector_index"] != CheckError {
		t.Error("vector_index check should be error")
	}
	if report.Checks["record_store"] != CheckOK {
		t.Error("record_store check should be ok")
	}
}

func TestCheck_NilEmbeddingChecker(t *testing.T) {
	svc := New(pinger{}, pinger{}, nil)

	report := svc.Check(context.Background())
	if _, ok := report.Checks["embedding"]; ok {
		t.Error("embedding check should be skipped when no checker is wired")
	}
	if report.Status != Healthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
}
