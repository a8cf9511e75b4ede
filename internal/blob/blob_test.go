package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetectAndAllowed(t *testing.T) {
	req := require.New(t)

	req.Equal("image/png", Detect(pngHeader))
	req.Equal("text/plain", Detect([]byte("hello there")))

	req.True(Allowed("image/webp"))
	req.True(Allowed("video/mp4"))
	req.True(Allowed("application/pdf"))
	req.False(Allowed("application/x-msdownload"))
	req.False(Allowed("text/html"))
}

func TestLocalStoreUpload(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	st, err := NewLocalStore(dir, "/media/", nil)
	req.NoError(err)

	// Given sniffed PNG content
	url, err := st.Upload(context.Background(), pngHeader, "")
	req.NoError(err)

	// Then the URL sits under the base and the file exists with a png extension
	req.True(strings.HasPrefix(url, "/media/"))
	req.True(strings.HasSuffix(url, ".png"))
	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/media/")))
	req.NoError(err)
	req.Equal(pngHeader, data)

	// When the type is not allowed
	_, err = st.Upload(context.Background(), []byte("<html></html>"), "text/html")
	req.ErrorIs(err, ErrUnsupportedType)
}
