package output_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"rsc.io/qr"

	"github.com/memeindex/memeindex/internal/output"
)

func TestDefaultQRConfig(t *testing.T) {
	t.Parallel()
	cfg := output.DefaultQRConfig()

	assert.Equal(t, qr.M, cfg.Level)
	assert.Equal(t, 1, cfg.QuietZone)
	assert.True(t, cfg.HalfBlocks)
}

func TestRenderQR_NonTerminal(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	ok := output.RenderQR(&buf, "https://t.me/MemeIndexBot?start=ref_abc", output.DefaultQRConfig())
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

func TestRenderQR_EmptyData(t *testing.T) {
	t.Parallel()
	assert.False(t, output.RenderQR(nil, "", output.DefaultQRConfig()))
}
