package console

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vk/slogxml/internal/binder"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/doctree"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/testutil"
)

func configure(t *testing.T, m *Module, src string) *pipeline.LoggerConfiguration {
	t.Helper()
	root, err := doctree.ParseXML([]byte(src), "logging.xml")
	require.NoError(t, err)
	logger, _ := testutil.NewTestLogger(t)
	lc := pipeline.NewLoggerConfiguration()
	_, err = binder.Configure(ctxlog.WithLogger(context.Background(), logger), lc, root, binder.Options{
		Modules: map[string]registry.Module{"console": m},
	})
	require.NoError(t, err)
	return lc
}

func TestConsoleWritesFormattedEvents(t *testing.T) {
	stdout := &testutil.SafeBuffer{}
	stderr := &testutil.SafeBuffer{}
	lc := configure(t, &Module{Stdout: stdout, Stderr: stderr}, `
<Logging>
  <Using>console</Using>
  <WriteTo>
    <Console formatter="Formatters::Json"/>
    <Console standardError="true" restrictedToMinimumLevel="Error"/>
  </WriteTo>
</Logging>`)

	logger := lc.CreateLogger()
	logger.Info("started", "port", 8080)
	logger.Error("crashed")

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "started", gjson.Get(lines[0], "msg").String())
	assert.Equal(t, int64(8080), gjson.Get(lines[0], "port").Int())
	assert.Equal(t, "Error", gjson.Get(lines[1], "level").String())

	assert.NotContains(t, stderr.String(), "started")
	assert.Contains(t, stderr.String(), "[ERR] crashed")
}

func TestConsoleFormatterFromNestedType(t *testing.T) {
	stdout := &testutil.SafeBuffer{}
	lc := configure(t, &Module{Stdout: stdout}, `
<Logging>
  <Using>console</Using>
  <WriteTo>
    <Console>
      <formatter>
        <formatting.TextFormatter TimeFormat="2006"/>
      </formatter>
    </Console>
  </WriteTo>
</Logging>`)

	lc.CreateLogger().Warn("low memory")
	assert.Regexp(t, `^\d{4} \[WRN\] low memory`, stdout.String())
}
