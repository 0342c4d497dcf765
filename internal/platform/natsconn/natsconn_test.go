package natsconn

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEnvInt_Default(t *testing.T) {
	v := envInt("NATSCONN_TEST_NONEXISTENT", 42)
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvInt_Set(t *testing.T) {
	t.Setenv("NATSCONN_TEST_INT", "7")
	v := envInt("NATSCONN_TEST_INT", 42)
	if v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
}

func TestEnvDuration_Default(t *testing.T) {
	v := envDuration("NATSCONN_TEST_NONEXISTENT", 5*time.Second)
	if v != 5*time.Second {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDuration_Set(t *testing.T) {
	t.Setenv("NATSCONN_TEST_DUR", "3s")
	v := envDuration("NATSCONN_TEST_DUR", 5*time.Second)
	if v != 3*time.Second {
		t.Fatalf("expected 3s, got %s", v)
	}
}

func TestOptions_Defaults(t *testing.T) {
	t.Setenv("NATS_URL", " nats://queue:4222 ")
	t.Setenv("NATS_MAX_RECONNECTS", "9")
	t.Setenv("NATS_RECONNECT_WAIT", "")
	t.Setenv("SERVICE_NAME", "threads")

	o := Options{}.withDefaults()
	if o.URL != "nats://queue:4222" || o.MaxReconnects != 9 || o.ReconnectWait != 2*time.Second || o.Name != "threads" {
		t.Fatalf("unexpected defaults: %+v", o)
	}

	o = Options{URL: "nats://explicit:1", MaxReconnects: 1, ReconnectWait: time.Second, Name: "x"}.withDefaults()
	if o.URL != "nats://explicit:1" || o.MaxReconnects != 1 || o.ReconnectWait != time.Second || o.Name != "x" {
		t.Fatalf("explicit options were overridden: %+v", o)
	}
}

func TestOptions_LoggerAddsHandlers(t *testing.T) {
	base := Options{MaxReconnects: 1, ReconnectWait: time.Second}
	plain := len(base.natsOptions())
	base.Logger = zap.NewNop()
	if got := len(base.natsOptions()); got != plain+4 {
		t.Fatalf("expected %d options with a logger, got %d", plain+4, got)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(Options{
		URL:           "nats://127.0.0.1:19999",
		MaxReconnects: 0,
		ReconnectWait: 10 * time.Millisecond,
		Name:          "threads-test",
		Logger:        zap.NewNop(),
	})
	if err == nil {
		t.Fatal("expected error connecting to invalid NATS URL")
	}
}
