package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockIndexPinger struct {
	err error
}

func (m *mockIndexPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

type mockCMSPinger struct {
	err error
}

func (m *mockCMSPinger) Ping(_ context.Context, _ string) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockIndexPinger{}, &mockEmbeddingChecker{}, true, &mockCMSPinger{}, "product")
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"index", "embedding", "expander", "cms"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
}

func TestCheck_IndexError(t *testing.T) {
	svc := New(&mockIndexPinger{err: errors.New("conn refused")}, &mockEmbeddingChecker{}, true, &mockCMSPinger{}, "product")
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["index"] != CheckError {
		t.Errorf("expected index %q, got %q", CheckError, r.Checks["index"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
}

func TestCheck_EmbeddingError(t *testing.T) {
	svc := New(&mockIndexPinger{}, &mockEmbeddingChecker{err: errors.New("timeout")}, true, &mockCMSPinger{}, "product")
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding %q, got %q", CheckError, r.Checks["embedding"])
	}
}

func TestCheck_UnconfiguredIsNotDegraded(t *testing.T) {
	svc := New(nil, nil, false, nil, "product")
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("unconfigured components must not degrade, got %q", r.Status)
	}
	for _, name := range []string{"index", "embedding", "expander", "cms"} {
		if r.Checks[name] != CheckUnconfigured {
			t.Errorf("expected %s %q, got %q", name, CheckUnconfigured, r.Checks[name])
		}
	}
}

func TestCheck_CMSError(t *testing.T) {
	svc := New(&mockIndexPinger{}, &mockEmbeddingChecker{}, false, &mockCMSPinger{err: errors.New("bad gateway")}, "product")
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["cms"] != CheckError {
		t.Errorf("expected cms %q, got %q", CheckError, r.Checks["cms"])
	}
}
