package instrumentation

import "testing"

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("INSTRUMENTATION_ENABLED", "")
	t.Setenv("METRICS_EXPORTER", "")

	cfg := DefaultConfig()
	if cfg.ServiceName != "phnx-homeserver" {
		t.Errorf("ServiceName = %q, want phnx-homeserver", cfg.ServiceName)
	}
	if cfg.Enabled {
		t.Error("Enabled should default to false")
	}
	if cfg.MetricsExporter != "prometheus" {
		t.Errorf("MetricsExporter = %q, want prometheus", cfg.MetricsExporter)
	}
	if cfg.TracingExporter != "none" {
		t.Errorf("TracingExporter = %q, want none", cfg.TracingExporter)
	}
}

func TestDefaultConfigRespectsEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "phnx-qs")
	t.Setenv("INSTRUMENTATION_ENABLED", "true")

	cfg := DefaultConfig()
	if cfg.ServiceName != "phnx-qs" {
		t.Errorf("ServiceName = %q, want phnx-qs", cfg.ServiceName)
	}
	if !cfg.Enabled {
		t.Error("Enabled should be true when INSTRUMENTATION_ENABLED=true")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{MetricsExporter: "nonsense"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() is lenient and should not error, got %v", err)
	}
}
