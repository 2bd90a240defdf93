package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewPacer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rpm  int
		want int
	}{
		{name: "valid limit", rpm: 50, want: 50},
		{name: "zero is unlimited", rpm: 0, want: unlimitedRPM},
		{name: "negative is unlimited", rpm: -1, want: unlimitedRPM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewPacer(tt.rpm)
			if got := p.RPM(); got != tt.want {
				t.Errorf("RPM() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPacerAllowBurst(t *testing.T) {
	t.Parallel()

	p := NewPacer(5)
	allowed := 0
	for range 10 {
		if p.Allow() {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("allowed = %d, want 5", allowed)
	}
}

func TestPacerWaitCanceled(t *testing.T) {
	t.Parallel()

	p := NewPacer(1)
	if !p.Allow() {
		t.Fatal("first call should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Wait() error = %v, want ErrContextCancelled", err)
	}
}

func TestPacerSetRPM(t *testing.T) {
	t.Parallel()

	p := NewPacer(1)
	p.Allow()
	if p.Allow() {
		t.Fatal("second call should be paced")
	}

	p.SetRPM(100)
	if p.RPM() != 100 {
		t.Errorf("RPM() = %d, want 100", p.RPM())
	}
	if !p.Allow() {
		t.Error("call after raising the limit should be allowed")
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}
