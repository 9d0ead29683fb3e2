package binder

import (
	"context"
	"log/slog"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/slogxml/internal/cfgerr"
	"github.com/vk/slogxml/internal/directive"
	"github.com/vk/slogxml/internal/doctree"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
)

type endpoint struct {
	Host    string
	Port    int
	Secure  bool `bind:"tls"`
	Tags    []string
	Timeout time.Duration
}

type shape interface{ Area() float64 }

type square struct{ Side float64 }

func (s *square) Area() float64 { return s.Side * s.Side }

type circle struct{}

func (circle) Area() float64 { return 0 }

func newResolver(t *testing.T) *ResolutionContext {
	t.Helper()
	rc := NewResolutionContext(nil)
	rc.Registry.Load(BuiltinsID, pipeline.Builtins{})
	rc.Registry.RegisterType(registry.TypeInfo{
		Name:       "shapes.Square",
		Type:       reflect.TypeOf(&square{}),
		New:        func() any { return &square{Side: 1} },
		Properties: map[string]func() any{"Unit": func() any { return &square{Side: 1} }},
		Fields:     map[string]any{"Big": &square{Side: 10}, "Label": "not a shape"},
	})
	rc.Registry.RegisterType(registry.TypeInfo{Name: "shapes.Circle", Type: reflect.TypeOf(circle{})})
	return rc
}

func resolveText(t *testing.T, rc *ResolutionContext, text string, target any) (any, error) {
	t.Helper()
	v, err := rc.Resolve(context.Background(), directive.TextArgument(text), reflect.TypeOf(target).Elem())
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func resolveXML(t *testing.T, rc *ResolutionContext, src string, target any) (any, error) {
	t.Helper()
	n, err := doctree.ParseXML([]byte(src), "arg.xml")
	require.NoError(t, err)
	v, err := rc.Resolve(context.Background(), directive.Classify(n), reflect.TypeOf(target).Elem())
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func TestResolveScalars(t *testing.T) {
	rc := newResolver(t)
	t.Setenv("SLOGXML_TEST_DIR", "/var/log")

	testCases := []struct {
		name   string
		text   string
		target any
		want   any
	}{
		{"string passthrough", " keep spaces ", new(string), " keep spaces "},
		{"env placeholder", "%SLOGXML_TEST_DIR%/app.log", new(string), "/var/log/app.log"},
		{"unset placeholder kept", "%SLOGXML_UNSET_VAR%", new(string), "%SLOGXML_UNSET_VAR%"},
		{"int", " 42 ", new(int), 42},
		{"uint16", "8080", new(uint16), uint16(8080)},
		{"float", "0.25", new(float64), 0.25},
		{"bool mixed case", "True", new(bool), true},
		{"any is text", "hello", new(any), "hello"},
		{"enum", "warning", new(level.Level), level.Warning},
		{"go duration", "1m30s", new(time.Duration), 90 * time.Second},
		{"timespan", "01:02:03", new(time.Duration), time.Hour + 2*time.Minute + 3*time.Second},
		{"timespan with days", "2.00:00:01.5", new(time.Duration), 48*time.Hour + 1500*time.Millisecond},
		{"text unmarshaler", "WARN", new(slog.Level), slog.LevelWarn},
		{"bytes", "abc", new([]byte), []byte("abc")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveText(t, rc, tc.text, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveNullable(t *testing.T) {
	rc := newResolver(t)

	got, err := resolveText(t, rc, "  ", new(*int))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = resolveText(t, rc, "7", new(*int))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, *got.(*int))

	got, err = resolveText(t, rc, "https://logs.example.com:5341/ingest?k=v", new(*url.URL))
	require.NoError(t, err)
	u := got.(*url.URL)
	assert.Equal(t, "logs.example.com:5341", u.Host)
	assert.Equal(t, "/ingest", u.Path)

	got, err = resolveText(t, rc, "", new(*time.Duration))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveConversionErrors(t *testing.T) {
	rc := newResolver(t)
	for _, tc := range []struct {
		text   string
		target any
	}{
		{"ten", new(int)},
		{"1.5", new(int)},
		{"300", new(uint8)},
		{"yes", new(bool)},
		{"Loud", new(level.Level)},
		{"soon", new(time.Duration)},
		{"text", new(chan int)},
	} {
		_, err := resolveText(t, rc, tc.text, tc.target)
		var conv *cfgerr.ConversionError
		require.ErrorAs(t, err, &conv, "%q into %T", tc.text, tc.target)
		assert.Equal(t, reflect.TypeOf(tc.target).Elem(), conv.Target)
	}
}

func TestResolveStaticMembers(t *testing.T) {
	rc := newResolver(t)

	got, err := resolveText(t, rc, "shapes.Square::Big", new(shape))
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.(shape).Area())

	got, err = resolveText(t, rc, "Square::unit, shapes", new(shape))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.(shape).Area(), "properties are consulted first")

	_, err = resolveText(t, rc, "shapes.Square::Huge", new(shape))
	var missing *cfgerr.MemberNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Huge", missing.Member)

	_, err = resolveText(t, rc, "shapes.Square::Label", new(shape))
	assert.ErrorAs(t, err, new(*cfgerr.ConversionError))

	_, err = resolveText(t, rc, "shapes.Hexagon::Unit", new(shape))
	assert.ErrorAs(t, err, new(*cfgerr.TypeNotFoundError))
}

func TestResolveTypeNames(t *testing.T) {
	rc := newResolver(t)

	got, err := resolveText(t, rc, "shapes.Square", new(shape))
	require.NoError(t, err)
	assert.Equal(t, &square{Side: 1}, got)

	got, err = resolveText(t, rc, "pipeline.RedactPolicy", new(*pipeline.RedactPolicy))
	require.NoError(t, err)
	assert.Equal(t, "***", got.(*pipeline.RedactPolicy).Mask)

	_, err = resolveText(t, rc, "shapes.Circle", new(shape))
	var noCtor *cfgerr.NoUsableConstructorError
	require.ErrorAs(t, err, &noCtor)
	assert.Equal(t, "shapes.Circle", noCtor.Type)

	_, err = resolveText(t, rc, "shapes.Triangle", new(shape))
	var notFound *cfgerr.TypeNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "shapes.Triangle", notFound.Name)

	got, err = resolveText(t, rc, "Square", new(reflect.Type))
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(&square{}), got)
}

func TestResolveSwitches(t *testing.T) {
	rc := newResolver(t)
	declared, err := rc.Switches.DeclareLevel("$sink", "Error")
	require.NoError(t, err)

	v, err := rc.Resolve(context.Background(), directive.TextArgument(" $sink "), levelSwitchType)
	require.NoError(t, err)
	assert.Same(t, declared, v.Interface())

	_, err = rc.Resolve(context.Background(), directive.TextArgument("$other"), levelSwitchType)
	assert.ErrorAs(t, err, new(*cfgerr.UnknownSwitchError))
	_, err = rc.Resolve(context.Background(), directive.TextArgument("$sink"), filterSwitchType)
	assert.ErrorAs(t, err, new(*cfgerr.UnknownSwitchError))
}

func TestResolveSequencePreservesOrder(t *testing.T) {
	rc := newResolver(t)

	got, err := resolveXML(t, rc, `<tags><Item>foo</Item><Item>bar</Item><Item>baz</Item></tags>`, new([]string))
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"foo", "bar", "baz"}, got); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}

	got, err = resolveXML(t, rc, `<ports><Port>1</Port><Port>2</Port><Port>3</Port></ports>`, new([3]int))
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 2, 3}, got)

	_, err = resolveXML(t, rc, `<ports><Item>1</Item></ports>`, new([3]int))
	assert.ErrorAs(t, err, new(*cfgerr.ConversionError))

	got, err = resolveText(t, rc, "a, b,,c", new([]string))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got, err = resolveXML(t, rc, `<levels><Item>Debug</Item><Item>Error</Item></levels>`, new(any))
	require.NoError(t, err)
	assert.Equal(t, []any{"Debug", "Error"}, got)

	_, err = resolveXML(t, rc, `<n><Item>1</Item><Item>2</Item></n>`, new(int))
	assert.ErrorAs(t, err, new(*cfgerr.ConversionError))
}

func TestResolveNestedValues(t *testing.T) {
	rc := newResolver(t)

	got, err := resolveXML(t, rc, `<target Host="example.com">
  <Port>514</Port>
  <TLS>true</TLS>
  <tags><Item>a</Item><Item>b</Item></tags>
  <timeout>00:00:05</timeout>
</target>`, new(endpoint))
	require.NoError(t, err)
	assert.Equal(t, endpoint{Host: "example.com", Port: 514, Secure: true, Tags: []string{"a", "b"}, Timeout: 5 * time.Second}, got)

	_, err = resolveXML(t, rc, `<target><Nope>1</Nope><Port>1</Port></target>`, new(*endpoint))
	assert.ErrorAs(t, err, new(*cfgerr.ConversionError))

	got, err = resolveXML(t, rc, `<policy><Keys><Item>pin</Item></Keys></policy>`, new(*pipeline.RedactPolicy))
	require.NoError(t, err)
	assert.Equal(t, &pipeline.RedactPolicy{Keys: []string{"pin"}, Mask: "***"}, got, "starts from the registered constructor")

	got, err = resolveXML(t, rc, `<limits><low>1</low><high>9</high></limits>`, new(map[string]int))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"low": 1, "high": 9}, got)

	got, err = resolveXML(t, rc, `<shape><Square Side="3"/></shape>`, new(shape))
	require.NoError(t, err)
	assert.Equal(t, 9.0, got.(shape).Area())

	_, err = resolveXML(t, rc, `<shape><Cube Side="3"/></shape>`, new(shape))
	assert.ErrorAs(t, err, new(*cfgerr.TypeNotFoundError))

	got, err = resolveXML(t, rc, `<extra><Region>eu</Region><Zone>b</Zone></extra>`, new(any))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Region": "eu", "Zone": "b"}, got)
}

func TestResolveRawNode(t *testing.T) {
	rc := newResolver(t)
	got, err := resolveXML(t, rc, `<custom><anything Goes="here"/></custom>`, new(*doctree.Node))
	require.NoError(t, err)
	n := got.(*doctree.Node)
	assert.Equal(t, "custom", n.Tag)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "anything", n.Children[0].Tag)
}

func TestResolveConfiguratorRequiresNestedContent(t *testing.T) {
	rc := newResolver(t)
	_, err := resolveText(t, rc, "Console", new(func(*pipeline.SinkConfiguration)))
	assert.ErrorAs(t, err, new(*cfgerr.ConversionError))
}

func TestConfiguratorWithErrorResult(t *testing.T) {
	rc := newResolver(t)
	got, err := resolveXML(t, rc, `<configure>
  <Destructure Name="ToMaximumDepth" maximumDestructuringDepth="-1"/>
</configure>`, new(func(*pipeline.DestructuringConfiguration) error))
	require.NoError(t, err)

	configure := got.(func(*pipeline.DestructuringConfiguration) error)
	err = configure(&pipeline.DestructuringConfiguration{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SLOGXML_A", "1")
	assert.Equal(t, "1-%SLOGXML_UNSET_B%-1", ExpandEnv("%SLOGXML_A%-%SLOGXML_UNSET_B%-%SLOGXML_A%"))
	assert.Equal(t, "100%", ExpandEnv("100%"))
	assert.Equal(t, "$s", ExpandEnv("$s"))
}
