package cmd

import (
	"bytes"
	"strings"
	"testing"

	"harness/internal/api"
)

func TestRenderStatus(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, "http://localhost:9990/management", "running", []api.DeploymentDescription{
		{Name: "orders.war", RuntimeName: "orders.war", Enabled: true, Status: "OK"},
		{Name: "billing.ear", RuntimeName: "billing.ear", Enabled: false},
	})

	out := buf.String()
	for _, want := range []string{"running", "http://localhost:9990/management", "orders.war", "billing.ear", "NAME", "RUNTIME NAME", "OK", "deployments"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderStatusNoDeployments(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, "http://localhost:9990/management", "reload-required", nil)

	out := buf.String()
	if !strings.Contains(out, "reload-required") {
		t.Errorf("Expected state in output, got %q", out)
	}
	if !strings.Contains(out, "No deployments found") {
		t.Errorf("Expected empty notice in output, got %q", out)
	}
	if strings.Contains(out, "RUNTIME NAME") {
		t.Errorf("Expected no table for empty list, got %q", out)
	}
}
