package environment

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/slogxml/internal/binder"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/doctree"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/testutil"
)

func configure(t *testing.T, src string) (*pipeline.LoggerConfiguration, *testutil.CaptureSink) {
	t.Helper()
	root, err := doctree.ParseXML([]byte(src), "logging.xml")
	require.NoError(t, err)
	logger, _ := testutil.NewTestLogger(t)
	lc := pipeline.NewLoggerConfiguration()
	_, err = binder.Configure(ctxlog.WithLogger(context.Background(), logger), lc, root, binder.Options{
		Modules: map[string]registry.Module{"environment": &Module{}},
	})
	require.NoError(t, err)
	capture := testutil.NewCaptureSink()
	lc.WriteTo.Sink(capture, level.Verbose, nil)
	return lc, capture
}

func TestEnvironmentEnrichers(t *testing.T) {
	t.Setenv("SLOGXML_REGION", "eu-west-1")
	t.Setenv("SLOGXML_TIER", "gold")

	lc, capture := configure(t, `
<Logging>
  <Using>environment</Using>
  <Enrich>
    <WithEnvironmentVariable environmentVariableName="SLOGXML_REGION" propertyName="Region"/>
    <WithEnvironmentVariable environmentVariableName="SLOGXML_NOT_SET_ANYWHERE"/>
    <WithEnvironmentVariables prefix="SLOGXML_"/>
    <WithMachineName/>
    <WithProcessId/>
    <WithEventId/>
  </Enrich>
</Logging>`)

	logger := lc.CreateLogger()
	logger.Info("one")
	logger.Info("two")

	records := capture.Records()
	require.Len(t, records, 2)
	r := records[0]

	v, ok := testutil.Attr(r, "Region")
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", v.String())
	_, ok = testutil.Attr(r, "SLOGXML_NOT_SET_ANYWHERE")
	assert.False(t, ok)

	env, ok := testutil.Attr(r, "Environment")
	require.True(t, ok)
	found := map[string]string{}
	for _, a := range env.Group() {
		found[a.Key] = a.Value.String()
	}
	assert.Equal(t, "gold", found["SLOGXML_TIER"])

	host, _ := os.Hostname()
	v, _ = testutil.Attr(r, "MachineName")
	assert.Equal(t, host, v.String())
	v, _ = testutil.Attr(r, "ProcessId")
	assert.Equal(t, int64(os.Getpid()), v.Int64())

	first, ok := testutil.Attr(records[0], "EventId")
	require.True(t, ok)
	second, _ := testutil.Attr(records[1], "EventId")
	_, err := uuid.Parse(first.String())
	require.NoError(t, err)
	assert.NotEqual(t, first.String(), second.String())
}
