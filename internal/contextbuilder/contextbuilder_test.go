package contextbuilder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies() {
		got, err := ParseStrategy(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStrategy("whole_repo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestBuild_Guards(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "main.c", "int x;\n")

	b := New(root)

	t.Run("unsafe path", func(t *testing.T) {
		_, err := b.Build("../outside.c", 1, StrategyFixedLines, Options{})
		assert.ErrorIs(t, err, ErrUnsafePath)
	})

	t.Run("missing file is unsafe", func(t *testing.T) {
		_, err := b.Build("missing.c", 1, StrategyFixedLines, Options{})
		assert.ErrorIs(t, err, ErrUnsafePath)
	})

	t.Run("unknown strategy checked before path", func(t *testing.T) {
		_, err := b.Build("main.c", 1, Strategy("bogus"), Options{})
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})
}

func TestBuild_FixedLines(t *testing.T) {
	root := t.TempDir()
	var lines []string
	for i := 1; i <= 20; i++ {
		lines = append(lines, "line"+string(rune('a'+i-1)))
	}
	writeSource(t, root, "f.c", strings.Join(lines, "\n")+"\n")

	b := New(root)

	t.Run("window around issue line", func(t *testing.T) {
		got, err := b.Build("f.c", 10, StrategyFixedLines, Options{LinesBefore: 2, LinesAfter: 2})
		require.NoError(t, err)
		assert.Equal(t, "8: lineh\n9: linei\n10: linej\n11: linek\n12: linel", got)
	})

	t.Run("clamped at start of file", func(t *testing.T) {
		got, err := b.Build("f.c", 2, StrategyFixedLines, Options{LinesBefore: 5, LinesAfter: 1})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "1: linea"))
		assert.True(t, strings.HasSuffix(got, "3: linec"))
	})

	t.Run("clamped at end of file", func(t *testing.T) {
		got, err := b.Build("f.c", 19, StrategyFixedLines, Options{LinesBefore: 1, LinesAfter: 10})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(got, "20: linet"))
	})

	t.Run("line past end of short file returns available lines", func(t *testing.T) {
		shortRoot := t.TempDir()
		writeSource(t, shortRoot, "short.c", "a\nb\nc\n")

		got, err := New(shortRoot).Build("short.c", 10, StrategyFixedLines, Options{})
		require.NoError(t, err)
		assert.Equal(t, "1: a\n2: b\n3: c", got)
	})

	t.Run("empty file", func(t *testing.T) {
		emptyRoot := t.TempDir()
		writeSource(t, emptyRoot, "empty.c", "")

		got, err := New(emptyRoot).Build("empty.c", 1, StrategyFixedLines, Options{})
		require.NoError(t, err)
		assert.Equal(t, "", got)
	})
}

const sampleProgram = `#include <stdio.h>

static int helper(int n) {
    if (n > 0) {
        return n * 2;
    }
    return 0;
}

int main(void) {
    int *p = 0;
    *p = 1;
    return 0;
}
`

func TestBuild_FunctionScope(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "prog.c", sampleProgram)
	b := New(root)

	t.Run("extracts enclosing function", func(t *testing.T) {
		got, err := b.Build("prog.c", 12, StrategyFunctionScope, Options{})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(got, "10: int main(void) {"))
		assert.Contains(t, got, "12:     *p = 1;")
		assert.True(t, strings.HasSuffix(got, "14: }"))
		assert.NotContains(t, got, "helper")
	})

	t.Run("issue inside nested block finds inner scope", func(t *testing.T) {
		got, err := b.Build("prog.c", 5, StrategyFunctionScope, Options{})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(got, "4:     if (n > 0) {"))
		assert.True(t, strings.HasSuffix(got, "6:     }"))
	})

	t.Run("issue on opener line", func(t *testing.T) {
		got, err := b.Build("prog.c", 10, StrategyFunctionScope, Options{})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "10: int main(void) {"))
		assert.True(t, strings.HasSuffix(got, "14: }"))
	})

	t.Run("no enclosing block falls back to fixed window", func(t *testing.T) {
		got, err := b.Build("prog.c", 1, StrategyFunctionScope, Options{})
		require.NoError(t, err)

		// default fixed window of 5 lines either side
		assert.True(t, strings.HasPrefix(got, "1: #include <stdio.h>"))
		assert.True(t, strings.HasSuffix(got, "6:     }"))
	})

	t.Run("braceless file falls back", func(t *testing.T) {
		flatRoot := t.TempDir()
		writeSource(t, flatRoot, "flat.c", "int a;\nint b;\nint c;\n")

		got, err := New(flatRoot).Build("flat.c", 2, StrategyFunctionScope, Options{})
		require.NoError(t, err)
		assert.Equal(t, "1: int a;\n2: int b;\n3: int c;", got)
	})

	t.Run("line past end falls back", func(t *testing.T) {
		got, err := b.Build("prog.c", 99, StrategyFunctionScope, Options{})
		require.NoError(t, err)
		assert.NotEmpty(t, got)
	})
}

func TestBuild_FileScope(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "prog.c", sampleProgram)
	b := New(root)

	t.Run("whole file with issue marker", func(t *testing.T) {
		got, err := b.Build("prog.c", 12, StrategyFileScope, Options{})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(got, "1: #include <stdio.h>"))
		assert.Contains(t, got, "12:     *p = 1;  // <-- issue reported here")
		assert.True(t, strings.HasSuffix(got, "14: }"))
	})

	t.Run("file over the cap falls back to fixed window", func(t *testing.T) {
		got, err := b.Build("prog.c", 12, StrategyFileScope, Options{MaxFileLines: 5})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(got, "7: "))
		assert.NotContains(t, got, "issue reported here")
	})
}
