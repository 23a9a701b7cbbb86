package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"text", ModeText},
		{"markdown", ModeMarkdown},
		{"json", ModeJSON},
		{"auto", ModeAuto},
		{"", ModeAuto},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Mode(tt.in), tt.in)
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{"auto tty", ModeAuto, true, ModeText},
		{"auto pipe", ModeAuto, false, ModeMarkdown},
		{"explicit json", ModeJSON, true, ModeJSON},
		{"explicit text on pipe", ModeText, false, ModeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRenderer(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
}

func TestHeader(t *testing.T) {
	r, out, _ := newTestRenderer(ModeMarkdown, false)
	r.Header(2, "Sources")
	assert.Equal(t, "## Sources\n\n", out.String())

	r, out, _ = newTestRenderer(ModeText, false)
	r.Header(1, "Merge")
	assert.Equal(t, "Merge\n", out.String(), "no ANSI codes without a terminal")
}

func TestTable(t *testing.T) {
	headers := []string{"Source", "Rows"}
	rows := [][]string{{"orders", "4"}, {"delivery", "3"}}

	r, out, _ := newTestRenderer(ModeMarkdown, false)
	r.Table(headers, rows)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| Source | Rows |", lines[0])
	assert.Equal(t, "| orders | 4 |", lines[2])

	r, out, _ = newTestRenderer(ModeText, false)
	r.Table(headers, rows)
	assert.Contains(t, out.String(), "┌")
	assert.Contains(t, out.String(), "delivery")
}

func TestStatusLineAndWarning(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeText, false)
	r.StatusLine("orders.csv", "success", "(4 rows)")
	r.StatusLine("fleet.csv", "failed", "")
	r.Warning("join fan-out")

	assert.Equal(t, "✓ orders.csv (4 rows)\n✗ fleet.csv\n", out.String())
	assert.Equal(t, "Warning: join fan-out\n", errOut.String())
}

func TestJSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"rows": 4}))
	assert.Equal(t, "{\n  \"rows\": 4\n}\n", out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Deep", FormatHeader(3, "Deep"))
	assert.Equal(t, "- **Rows**: 4", FormatKeyValue("Rows", "4"))
}
