package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	calls  int
	output []byte
	err    error
}

func (f *fakeConverter) ConvertToPDF(_ context.Context, _ string, _ []byte) ([]byte, error) {
	f.calls++
	return f.output, f.err
}

// docxBytes builds the smallest zip that is recognized as a Word document
func docxBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"[Content_Types].xml", "word/document.xml"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, "<xml/>")
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReferenceToPDF(t *testing.T) {
	logger := logrus.NewEntry(logrus.New())

	t.Run("pdf is passed through", func(t *testing.T) {
		conv := &fakeConverter{}
		pdf, converted, err := referenceToPDF(context.Background(), conv, "datasheet.pdf", pdfBytes, logger)
		require.NoError(t, err)
		assert.False(t, converted)
		assert.Equal(t, pdfBytes, pdf)
		assert.Zero(t, conv.calls)
	})

	t.Run("docx conversion failure", func(t *testing.T) {
		conv := &fakeConverter{err: errors.New("libreoffice missing")}
		_, _, err := referenceToPDF(context.Background(), conv, "datasheet.docx", docxBytes(t), logger)
		require.Error(t, err)
		assert.Equal(t, 1, conv.calls)
		assert.Contains(t, err.Error(), "libreoffice missing")
	})

	t.Run("converter returns garbage", func(t *testing.T) {
		conv := &fakeConverter{output: []byte("not a pdf")}
		_, _, err := referenceToPDF(context.Background(), conv, "datasheet.docx", docxBytes(t), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid PDF")
	})

	t.Run("no converter", func(t *testing.T) {
		_, _, err := referenceToPDF(context.Background(), nil, "datasheet.docx", docxBytes(t), logger)
		assert.Error(t, err)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, _, err := referenceToPDF(context.Background(), &fakeConverter{}, "notes.txt", []byte("plain text"), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported reference document type")
	})
}

func TestHTTPConverter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/doc_to_pdf", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "datasheet.docx", header.Filename)
		assert.Equal(t, []byte("docx-content"), data)
		w.Write(pdfBytes)
	}))
	defer server.Close()

	pdf, err := NewHTTPConverter(server.URL+"/").ConvertToPDF(context.Background(), "/tmp/upload/datasheet.docx", []byte("docx-content"))
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, pdf)
}

func TestHTTPConverterError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"message":"No file selected for uploading"}`)
	}))
	defer server.Close()

	_, err := NewHTTPConverter(server.URL).ConvertToPDF(context.Background(), "datasheet.docx", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversion service error (400)")
}
