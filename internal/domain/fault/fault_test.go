package fault_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/sophialabs/mimicry/internal/domain/fault"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in    string
		want  fault.Type
		known bool
	}{
		{"", fault.None, true},
		{"None", fault.None, true},
		{"fixeddelay", fault.FixedDelay, true},
		{"ConnectionReset", fault.ConnectionReset, true},
		{"MALFORMEDRESPONSE", fault.MalformedResponse, true},
		{"Explode", fault.None, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, known := fault.ParseType(tt.in)
			if got != tt.want || known != tt.known {
				t.Errorf("ParseType(%q) = (%q, %v), want (%q, %v)", tt.in, got, known, tt.want, tt.known)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := fault.ParseConfig(`{"delayMs": 250, "statusCode": 503}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DelayMs != 250 || cfg.StatusCode != 503 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	cfg, err = fault.ParseConfig("  ")
	if err != nil {
		t.Fatalf("unexpected error for empty blob: %v", err)
	}
	if cfg != (fault.Config{}) {
		t.Errorf("expected zero config, got %+v", cfg)
	}

	if _, err := fault.ParseConfig("{not json"); err == nil {
		t.Error("expected error for malformed blob")
	}
}

func TestSpec_Plan(t *testing.T) {
	fixedRand := func(n int64) int64 { return n - 1 }

	tests := []struct {
		name       string
		spec       fault.Spec
		wantDelay  time.Duration
		wantAction fault.Action
		wantStatus int
	}{
		{"none", fault.Spec{Type: fault.None}, 0, fault.Proceed, 200},
		{"zero spec", fault.Spec{}, 0, fault.Proceed, 200},
		{"fixed delay configured", fault.Spec{Type: fault.FixedDelay, Config: fault.Config{DelayMs: 300}}, 300 * time.Millisecond, fault.Proceed, 200},
		{"fixed delay default", fault.Spec{Type: fault.FixedDelay}, time.Second, fault.Proceed, 200},
		{"random delay upper bound", fault.Spec{Type: fault.RandomDelay, Config: fault.Config{MinDelayMs: 100, MaxDelayMs: 200}}, 200 * time.Millisecond, fault.Proceed, 200},
		{"random delay inverted bounds", fault.Spec{Type: fault.RandomDelay, Config: fault.Config{MinDelayMs: 500, MaxDelayMs: 100}}, 500 * time.Millisecond, fault.Proceed, 200},
		{"timeout default", fault.Spec{Type: fault.Timeout}, 2 * time.Minute, fault.Proceed, 200},
		{"timeout configured", fault.Spec{Type: fault.Timeout, Config: fault.Config{TimeoutMs: 50}}, 50 * time.Millisecond, fault.Proceed, 200},
		{"reset", fault.Spec{Type: fault.ConnectionReset}, 0, fault.Reset, 200},
		{"empty with status", fault.Spec{Type: fault.EmptyResponse, Config: fault.Config{StatusCode: 503}}, 0, fault.Empty, 503},
		{"malformed", fault.Spec{Type: fault.MalformedResponse}, 0, fault.Malformed, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.spec.Plan(200, fixedRand)
			if p.Delay != tt.wantDelay {
				t.Errorf("delay = %v, want %v", p.Delay, tt.wantDelay)
			}
			if p.Action != tt.wantAction {
				t.Errorf("action = %v, want %v", p.Action, tt.wantAction)
			}
			if p.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", p.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestSpec_PlanRandomDelayStaysInRange(t *testing.T) {
	spec := fault.Spec{Type: fault.RandomDelay, Config: fault.Config{MinDelayMs: 10, MaxDelayMs: 20}}
	for range 100 {
		p := spec.Plan(200, nil)
		if p.Delay < 10*time.Millisecond || p.Delay > 20*time.Millisecond {
			t.Fatalf("delay %v outside [10ms, 20ms]", p.Delay)
		}
	}
}

func TestSpec_PlanMalformedConfiguredBody(t *testing.T) {
	p := fault.Spec{Type: fault.MalformedResponse, Config: fault.Config{Body: "<<garbage"}}.Plan(200, nil)
	if string(p.Body) != "<<garbage" {
		t.Errorf("expected configured body, got %q", p.Body)
	}
}

func TestMalform(t *testing.T) {
	body := []byte(`{"id":1,"name":"widget"}`)
	got := fault.Malform(body)
	if len(got) != len(body)/2 {
		t.Errorf("expected truncation to %d bytes, got %d", len(body)/2, len(got))
	}
	if !bytes.HasPrefix(body, got) {
		t.Errorf("expected prefix of original body, got %q", got)
	}

	if got := fault.Malform(nil); string(got) != `{"error": "malformed` {
		t.Errorf("unexpected malformed fragment for empty body: %q", got)
	}
}
