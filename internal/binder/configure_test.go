package binder

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/slogxml/internal/cfgerr"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/doctree"
	"github.com/vk/slogxml/internal/expr"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/testutil"
)

type fileCall struct {
	path      string
	formatter string
}

type formatter interface{ Format(msg string) string }

type upperFormatter struct{ Prefix string }

func (f *upperFormatter) Format(msg string) string { return f.Prefix + msg }

// sinkModule registers test sinks that record how they were called and
// write everything to capture.
func sinkModule(calls *[]fileCall, capture *testutil.CaptureSink) registry.Module {
	return testutil.SimpleModule(func(r *registry.Registry) {
		r.RegisterType(registry.TypeInfo{
			Name: "test.UpperFormatter",
			Type: reflect.TypeOf(&upperFormatter{}),
			New:  func() any { return &upperFormatter{Prefix: ">"} },
		})
		r.RegisterMethod("File", func(c *pipeline.SinkConfiguration, path string) {
			*calls = append(*calls, fileCall{path: path})
			c.Sink(capture, level.Verbose, nil)
		}, registry.Required("path"))
		r.RegisterMethod("File", func(c *pipeline.SinkConfiguration, path string, f formatter) {
			*calls = append(*calls, fileCall{path: path, formatter: f.Format("")})
			c.Sink(capture, level.Verbose, nil)
		}, registry.Required("path"), registry.Required("formatter"))
		r.RegisterMethod("Capture", func(c *pipeline.SinkConfiguration, min level.Level) {
			c.Sink(capture, min, nil)
		}, registry.Optional("restrictedToMinimumLevel", level.Verbose))
	})
}

type harness struct {
	lc      *pipeline.LoggerConfiguration
	rc      *ResolutionContext
	calls   []fileCall
	capture *testutil.CaptureSink
	logs    *testutil.SafeBuffer
}

func runConfigure(t *testing.T, src string, opts Options) (*harness, error) {
	t.Helper()
	root, err := doctree.ParseXML([]byte(src), "logging.xml")
	require.NoError(t, err)
	return runConfigureNode(t, root, opts)
}

func runConfigureNode(t *testing.T, root *doctree.Node, opts Options) (*harness, error) {
	t.Helper()
	logger, buf := testutil.NewTestLogger(t)
	h := &harness{lc: pipeline.NewLoggerConfiguration(), capture: testutil.NewCaptureSink(), logs: buf}
	if opts.Modules == nil {
		opts.Modules = map[string]registry.Module{}
	}
	opts.Modules["test"] = sinkModule(&h.calls, h.capture)

	ctx := ctxlog.WithLogger(context.Background(), logger)
	rc, err := Configure(ctx, h.lc, root, opts)
	h.rc = rc
	return h, err
}

func TestSwitchScenario(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <LevelSwitches><Switch Name="$s" Level="Warning"/></LevelSwitches>
  <MinimumLevel ControlledBy="$s"/>
</Logging>`, Options{})
	require.NoError(t, err)

	assert.Equal(t, level.Warning, h.lc.MinimumLevel.Current())
	sw, err := h.rc.Switches.LookupLevel("$s")
	require.NoError(t, err)
	sw.SetMinimumLevel(level.Error)
	assert.Equal(t, level.Error, h.lc.MinimumLevel.Current(), "the pipeline holds the declared switch")

	_, err = runConfigure(t, `<Logging><MinimumLevel ControlledBy="$missing"/></Logging>`, Options{})
	var unknown *cfgerr.UnknownSwitchError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "$missing", unknown.Name)
}

func TestSwitchDeclarationsPrecedeEverySection(t *testing.T) {
	// The switch block comes last in the document but is declared first.
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <WriteTo Name="Capture"><restrictedToMinimumLevel>Debug</restrictedToMinimumLevel></WriteTo>
  <MinimumLevel ControlledBy="$late"/>
  <LevelSwitches><Switch Name="$late">Error</Switch></LevelSwitches>
</Logging>`, Options{})
	require.NoError(t, err)
	assert.Equal(t, level.Error, h.lc.MinimumLevel.Current())
}

func TestInvalidSwitchNameIsFatal(t *testing.T) {
	_, err := runConfigure(t, `<Logging>
  <LevelSwitches><Switch Name="my-switch" Level="Debug"/></LevelSwitches>
</Logging>`, Options{})
	var invalid *cfgerr.InvalidConfigurationError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "my-switch")
	assert.Contains(t, err.Error(), `<Switch Name="$switchName" Level="InitialLevel"/>`)
}

func TestOverrideScenario(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <MinimumLevel Default="Debug">
    <Override Source="System">Warning</Override>
  </MinimumLevel>
  <WriteTo Name="Capture"/>
</Logging>`, Options{})
	require.NoError(t, err)

	log := h.lc.CreateLogger()
	log.Debug("app debug")
	pipeline.ForContext(log, "System.Net").Info("system info")
	pipeline.ForContext(log, "System.Net").Warn("system warning")
	pipeline.ForContext(log, "Systemic").Debug("other debug")

	assert.Equal(t, []string{"app debug", "system warning", "other debug"}, h.capture.Messages())
}

func TestPropertyRoundTrip(t *testing.T) {
	for name, src := range map[string]string{
		"attribute": `<Logging><Using>test</Using><Property Name="X" Value="1"/><WriteTo Name="Capture"/></Logging>`,
		"inline":    `<Logging><Using>test</Using><Property Name="X">1</Property><WriteTo Name="Capture"/></Logging>`,
	} {
		t.Run(name, func(t *testing.T) {
			h, err := runConfigure(t, src, Options{})
			require.NoError(t, err)
			h.lc.CreateLogger().Info("event")

			recs := h.capture.Records()
			require.Len(t, recs, 1)
			v, ok := testutil.Attr(recs[0], "X")
			require.True(t, ok)
			assert.Equal(t, "1", v.Any())
		})
	}
}

func TestPropertyRequiresNameAndValue(t *testing.T) {
	var invalid *cfgerr.InvalidConfigurationError

	_, err := runConfigure(t, `<Logging><Property Value="1"/></Logging>`, Options{})
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "Name")

	_, err = runConfigure(t, `<Logging><Property Name="X"/></Logging>`, Options{})
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "Value")
}

func TestTwoOverloadScenario(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <WriteTo Name="File"><path>plain.log</path></WriteTo>
  <WriteTo Name="File">
    <path>formatted.log</path>
    <formatter>test.UpperFormatter, test</formatter>
  </WriteTo>
</Logging>`, Options{})
	require.NoError(t, err)
	assert.Equal(t, []fileCall{{path: "plain.log"}, {path: "formatted.log", formatter: ">"}}, h.calls)
}

func TestUnknownDirectiveIsSkipped(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <WriteTo Name="Seq"><serverUrl>http://localhost:5341</serverUrl></WriteTo>
  <WriteTo Name="File"><formatter>UpperFormatter</formatter></WriteTo>
  <WriteTo Name="File"><path>after.log</path></WriteTo>
</Logging>`, Options{})
	require.NoError(t, err)
	assert.Equal(t, []fileCall{{path: "after.log"}}, h.calls)

	logs := h.logs.String()
	assert.Contains(t, logs, "Unable to find a method to configure")
	assert.Contains(t, logs, "known methods are: Capture, File, Logger, Sink")
	assert.Contains(t, logs, "candidate methods are: File(path string)")
}

func TestConversionFailureIsFatal(t *testing.T) {
	_, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <WriteTo Name="Capture"><restrictedToMinimumLevel>Loud</restrictedToMinimumLevel></WriteTo>
</Logging>`, Options{})
	var conv *cfgerr.ConversionError
	require.ErrorAs(t, err, &conv)
	assert.Contains(t, err.Error(), "logging.xml:3")
	assert.Contains(t, err.Error(), "restrictedToMinimumLevel")
}

func TestUsing(t *testing.T) {
	var invalid *cfgerr.InvalidConfigurationError

	_, err := runConfigure(t, `<Logging><Using> </Using></Logging>`, Options{})
	require.ErrorAs(t, err, &invalid)

	_, err = runConfigure(t, `<Logging><Using>kafka</Using></Logging>`, Options{})
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "known modules are: test")

	h, err := runConfigure(t, `<Logging><Using Name="TEST"/><Using>test</Using><Using>pipeline</Using></Logging>`, Options{})
	require.NoError(t, err)
	assert.True(t, h.rc.Registry.Loaded("test"))

	h, err = runConfigure(t, `<Logging/>`, Options{Load: []string{"test"}})
	require.NoError(t, err)
	assert.True(t, h.rc.Registry.Loaded("test"))
}

func TestNestedLoggerSharesSwitchesAndCatalog(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <LevelSwitches><Switch Name="$inner" Level="Error"/></LevelSwitches>
  <MinimumLevel>Verbose</MinimumLevel>
  <WriteTo Name="Logger">
    <configureLogger>
      <MinimumLevel ControlledBy="$inner"/>
      <LevelSwitches><Switch Name="$ignored" Level="Debug"/></LevelSwitches>
      <WriteTo Name="Capture"/>
    </configureLogger>
  </WriteTo>
</Logging>`, Options{})
	require.NoError(t, err)

	log := h.lc.CreateLogger()
	log.Warn("too low")
	log.Error("inner accepts")
	assert.Equal(t, []string{"inner accepts"}, h.capture.Messages())

	_, err = h.rc.Switches.LookupLevel("$ignored")
	assert.Error(t, err, "nested passes do not declare switches")
	assert.Contains(t, h.logs.String(), "Ignoring section in a nested logger configuration")
}

func TestNestedFailureAbortsTheWholePass(t *testing.T) {
	_, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <WriteTo Name="Logger">
    <configureLogger>
      <MinimumLevel ControlledBy="$nope"/>
    </configureLogger>
  </WriteTo>
</Logging>`, Options{})
	var unknown *cfgerr.UnknownSwitchError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "$nope", unknown.Name)
}

func TestNestedCategoryConfigurator(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <Enrich Name="AtLevel">
    <enrichFromLevel>Error</enrichFromLevel>
    <configureEnricher>
      <Enrich Name="WithProperty"><name>Alert</name><value>yes</value></Enrich>
    </configureEnricher>
  </Enrich>
  <WriteTo Name="Capture"/>
</Logging>`, Options{})
	require.NoError(t, err)

	log := h.lc.CreateLogger()
	log.Info("calm")
	log.Error("alarm")
	recs := h.capture.Records()
	require.Len(t, recs, 2)
	_, ok := testutil.Attr(recs[0], "Alert")
	assert.False(t, ok)
	v, ok := testutil.Attr(recs[1], "Alert")
	require.True(t, ok)
	assert.Equal(t, "yes", v.String())
}

func TestFilterSwitchControlledByShorthand(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <FilterSwitches><Switch Name="$f">level != "Warning"</Switch></FilterSwitches>
  <Filter ControlledBy="$f"/>
  <Filter Name="ByExcluding"><expression>startswith(message, "health")</expression></Filter>
  <WriteTo Name="Capture"/>
</Logging>`, Options{Compiler: expr.NewCompiler()})
	require.NoError(t, err)

	log := h.lc.CreateLogger()
	log.Warn("filtered by switch")
	log.Info("healthcheck")
	log.Info("kept")
	assert.Equal(t, []string{"kept"}, h.capture.Messages())

	sw, err := h.rc.Switches.LookupFilter("$f")
	require.NoError(t, err)
	require.NoError(t, sw.SetExpression("true"))
	log.Warn("now included")
	assert.Equal(t, []string{"kept", "now included"}, h.capture.Messages())
}

func TestFilterSwitchesWithoutCompilerAreSkipped(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <FilterSwitches><Switch Name="$f">true</Switch></FilterSwitches>
</Logging>`, Options{})
	require.NoError(t, err)
	assert.Contains(t, h.logs.String(), "Filter switches need an expression compiler")
	_, filters := h.rc.Switches.Len()
	assert.Zero(t, filters)
}

func TestDestructureAndAuditSections(t *testing.T) {
	h, err := runConfigure(t, `<Logging>
  <Using>test</Using>
  <Destructure Name="ToMaximumStringLength" maximumStringLength="4"/>
  <Destructure Name="With"><policy>pipeline.RedactPolicy</policy></Destructure>
  <AuditTo Name="Sink"><sink>pipeline.Sinks::Discard</sink></AuditTo>
  <WriteTo Name="Capture"/>
</Logging>`, Options{})
	require.NoError(t, err)

	require.NoError(t, h.lc.CreateHandler().Handle(context.Background(), testutil.NewRecord("m", "token", "abcdef", "note", "abcdef")))
	recs := h.capture.Records()
	require.Len(t, recs, 1)
	v, _ := testutil.Attr(recs[0], "token")
	assert.Equal(t, "***", v.String())
	v, _ = testutil.Attr(recs[0], "note")
	assert.Equal(t, "abc…", v.String())
}

func TestActionErrorIsFatal(t *testing.T) {
	_, err := runConfigure(t, `<Logging>
  <Destructure Name="ToMaximumStringLength" maximumStringLength="1"/>
</Logging>`, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2")
	assert.False(t, errors.As(err, new(*cfgerr.ConversionError)))
}

func TestConfigureFromHCL(t *testing.T) {
	root, err := doctree.ParseHCL([]byte(`
Using = ["test"]

LevelSwitches {
  Switch "$s" {
    Level = "Debug"
  }
}

MinimumLevel {
  ControlledBy = "$s"
  Override "System" {
    Level = "Error"
  }
}

Property "App" {
  Value = "billing"
}

WriteTo "File" {
  path = "app.log"
}
`), "logging.hcl")
	require.NoError(t, err)

	h, err := runConfigureNode(t, root, Options{})
	require.NoError(t, err)
	assert.Equal(t, level.Debug, h.lc.MinimumLevel.Current())
	assert.Equal(t, level.Error, h.lc.MinimumLevel.For("System.IO"))
	assert.Equal(t, []fileCall{{path: "app.log"}}, h.calls)

	h.lc.CreateLogger().Debug("hello")
	recs := h.capture.Records()
	require.Len(t, recs, 1)
	v, _ := testutil.Attr(recs[0], "App")
	assert.Equal(t, "billing", v.String())
}
