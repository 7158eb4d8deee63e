package services

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDOCX(t *testing.T, path, documentXML string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestExtractor_ExtractText(t *testing.T) {
	dir := t.TempDir()
	e := NewExtractor()

	txt := filepath.Join(dir, "notes.TXT")
	require.NoError(t, os.WriteFile(txt, []byte("Line one  \r\n\r\n\r\n  Line two"), 0o644))

	docx := filepath.Join(dir, "report.docx")
	writeDOCX(t, docx, `<w:document><w:body><w:p><w:r><w:t>Results &amp; discussion</w:t></w:r></w:p><w:p><w:r><w:t>See table</w:t><w:tab/><w:t>2</w:t></w:r></w:p></w:body></w:document>`)

	emptyDocx := filepath.Join(dir, "empty.docx")
	writeDOCX(t, emptyDocx, `<w:document><w:body></w:body></w:document>`)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr string
	}{
		{name: "txt", path: txt, want: "Line one\n\nLine two"},
		{name: "docx", path: docx, want: "Results & discussion\nSee table\t2"},
		{name: "empty docx", path: emptyDocx, wantErr: "no extractable text"},
		{name: "unsupported", path: filepath.Join(dir, "slides.pptx"), wantErr: "unsupported file type"},
		{name: "missing file", path: filepath.Join(dir, "gone.txt"), wantErr: "no such file"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.ExtractText(context.Background(), tc.path)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeExtractedText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   \n\n  ", ""},
		{"a\n\n\n\nb", "a\n\nb"},
		{"  a  \r  b ", "a\nb"},
	}
	for _, tc := range tests {
		if got := normalizeExtractedText(tc.in); got != tc.want {
			t.Errorf("normalizeExtractedText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
