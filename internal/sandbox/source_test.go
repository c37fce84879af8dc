package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapSourceStatements(t *testing.T) {
	src, err := wrapSource("fmt.Println(math.Sqrt(4))")
	require.NoError(t, err)
	assert.Contains(t, src, "\t\"fmt\"\n")
	assert.Contains(t, src, "\t\"math\"\n")
	assert.Contains(t, src, "func Run() {\n\tdf := env.DF")
}

func TestWrapSourceHoistsImports(t *testing.T) {
	code := "// totals\nimport \"sort\"\nimport (\n\t\"strings\"\n\ts \"strconv\"\n)\n\nkeys := df.Columns()\nsort.Strings(keys)"
	src, err := wrapSource(code)
	require.NoError(t, err)
	assert.Contains(t, src, "\t\"sort\"\n")
	assert.Contains(t, src, "\t\"strconv\"\n")
	assert.NotContains(t, src, "import \"sort\"")
	assert.Contains(t, src, "keys := df.Columns()")
}

func TestWrapSourceMainFunc(t *testing.T) {
	src, err := wrapSource("package main\n\nfunc main() {\n\tfmt.Println(df.NumRows())\n}")
	require.NoError(t, err)
	assert.Contains(t, src, "var df = env.DF")
	assert.Contains(t, src, "func Run() { main() }")
	assert.NotContains(t, src, "package main\n\npackage")
}

func TestWrapSourceRejectsForbiddenImport(t *testing.T) {
	for _, code := range []string{"import \"os\"", "import (\n\t\"net/http\"\n)", "import x \"os/exec\""} {
		_, err := wrapSource(code)
		assert.Error(t, err, code)
	}
}

func TestCheckSourceFindsGoStatements(t *testing.T) {
	src, err := wrapSource("go fmt.Println(1)")
	require.NoError(t, err)
	assert.ErrorIs(t, checkSource(src), ErrGoroutine)

	src, err = wrapSource("ch := make(chan int, 1)\nch <- 1\nfmt.Println(<-ch)")
	require.NoError(t, err)
	assert.NoError(t, checkSource(src))
}
