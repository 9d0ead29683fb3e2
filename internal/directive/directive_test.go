package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/slogxml/internal/doctree"
)

func parse(t *testing.T, src string) *doctree.Node {
	t.Helper()
	root, err := doctree.ParseXML([]byte(src), "test.xml")
	require.NoError(t, err)
	return root
}

func TestReadArguments(t *testing.T) {
	root := parse(t, `<Settings>
  <WriteTo Name="File" RollingInterval="Day">
    <Path>app.log</Path>
    <Tags><Item>foo</Item><Item>bar</Item><Item>baz</Item></Tags>
    <Formatter><Indent>2</Indent><Compact>true</Compact></Formatter>
    <rollinginterval>Hour</rollinginterval>
  </WriteTo>
  <writeto name="Console"/>
  <WriteTo Name="  "/>
  <WriteTo><Path>ignored.log</Path></WriteTo>
</Settings>`)

	ds := Read(root, "WriteTo", Options{})
	require.Len(t, ds, 2, "nameless and blank-named directives are dropped")

	file := ds[0]
	assert.Equal(t, "File", file.Name)
	assert.Equal(t, []string{"RollingInterval", "Path", "Tags", "Formatter"}, file.Args.Names())

	interval, ok := file.Args.Get("ROLLINGINTERVAL")
	require.True(t, ok)
	assert.Equal(t, "Hour", interval.Text, "child element overrides attribute")

	path, _ := file.Args.Get("path")
	assert.Equal(t, Text, path.Kind)
	assert.Equal(t, "app.log", path.Text)

	tags, _ := file.Args.Get("Tags")
	require.Equal(t, Sequence, tags.Kind)
	require.Len(t, tags.Items, 3)
	assert.Equal(t, "foo", tags.Items[0].Text)
	assert.Equal(t, "bar", tags.Items[1].Text)
	assert.Equal(t, "baz", tags.Items[2].Text)

	formatter, _ := file.Args.Get("Formatter")
	assert.Equal(t, Nested, formatter.Kind)
	require.NotNil(t, formatter.Node)
	assert.Len(t, formatter.Node.Children, 2)

	assert.Equal(t, "Console", ds[1].Name)
	assert.Empty(t, ds[1].Args)
}

func TestReadInlineArgument(t *testing.T) {
	root := parse(t, `<Settings>
  <Property Name="X">1</Property>
  <Property Name="Y" Value="2"/>
</Settings>`)

	ds := Read(root, "Property", Options{InlineArgument: "Value"})
	require.Len(t, ds, 2)
	for i, want := range []string{"1", "2"} {
		v, ok := ds[i].Args.Get("value")
		require.True(t, ok)
		assert.Equal(t, want, v.Text)
	}

	// Without the option the text is not promoted.
	ds = Read(root, "Property", Options{})
	_, ok := ds[0].Args.Get("Value")
	assert.False(t, ok)
}

func TestReadShorthand(t *testing.T) {
	root := parse(t, `<Settings>
  <Filter ControlledBy="$f"/>
  <Filter Name="ByExcluding" Expression="level == &quot;Debug&quot;"/>
</Settings>`)

	ds := Read(root, "Filter", Options{Shorthands: map[string]string{"ControlledBy": "switch"}})
	require.Len(t, ds, 2)
	assert.Equal(t, "ControlledBy", ds[0].Name)
	sw, ok := ds[0].Args.Get("switch")
	require.True(t, ok)
	assert.Equal(t, "$f", sw.Text)

	assert.Equal(t, "ByExcluding", ds[1].Name)
	e, _ := ds[1].Args.Get("expression")
	assert.Equal(t, `level == "Debug"`, e.Text)
}

func TestClassify(t *testing.T) {
	root := parse(t, `<Settings>
  <Single><Item>only</Item></Single>
  <Repeated><Url>a</Url><Url>b</Url></Repeated>
  <One><Url>a</Url></One>
  <Mixed><A>1</A><B>2</B></Mixed>
  <Empty/>
</Settings>`)

	assert.Equal(t, Sequence, Classify(root.Child("Single")).Kind)
	assert.Equal(t, Sequence, Classify(root.Child("Repeated")).Kind)
	assert.Equal(t, Nested, Classify(root.Child("One")).Kind)
	assert.Equal(t, Nested, Classify(root.Child("Mixed")).Kind)

	empty := Classify(root.Child("Empty"))
	assert.Equal(t, Text, empty.Kind)
	assert.Equal(t, "", empty.Text)
}

func TestReadNilParent(t *testing.T) {
	assert.Nil(t, Read(nil, "WriteTo", Options{}))
}

func TestReadAllIgnoresTags(t *testing.T) {
	root := parse(t, `<configureSink>
  <WriteTo Name="Console"/>
  <Sink Name="File"><path>x.log</path></Sink>
  <Comment>no name</Comment>
</configureSink>`)

	ds := ReadAll(root, Options{})
	require.Len(t, ds, 2)
	assert.Equal(t, "Console", ds[0].Name)
	assert.Equal(t, "File", ds[1].Name)
	assert.Nil(t, ReadAll(nil, Options{}))
}
