package app

import (
	"os"
	"testing"

	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. It returns
// the buffers console sinks and the app's own diagnostics write to. A nil
// modules map means the modules compiled into the binary, with console
// output captured.
func SetupAppTest(t *testing.T, cfg *Config, modules map[string]registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	out, diag := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	if modules == nil {
		modules = coreModules(out, out)
	}
	testApp := NewApp(out, diag, cfg, modules)

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("SLOGXML_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), diag.String())
		}
	})
	return testApp, out, diag
}
