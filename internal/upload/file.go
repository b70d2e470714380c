package upload

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const sniffLen = 512

// File is one user-selected file. Body is consumed once by Send, which
// closes it when it implements io.Closer.
type File struct {
	Name        string
	ContentType string
	// Size in bytes, or -1 when unknown.
	Size int64
	Body io.Reader
}

// Ext returns the lower-cased extension of the file name, including the dot.
func (f File) Ext() string {
	return strings.ToLower(path.Ext(strings.ReplaceAll(f.Name, "\\", "/")))
}

// FileFromBytes wraps in-memory content. An empty contentType is derived
// from the name or sniffed from content.
func FileFromBytes(name, contentType string, content []byte) File {
	if strings.TrimSpace(contentType) == "" {
		contentType = detectContentType(name, content)
	}
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Body:        bytes.NewReader(content),
	}
}

// FileFromPath opens p for upload. The returned File's Body closes the
// underlying file once Send has consumed it.
func FileFromPath(p string) (File, error) {
	fh, err := os.Open(p)
	if err != nil {
		return File{}, fmt.Errorf("open upload: %w", err)
	}
	info, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return File{}, fmt.Errorf("stat upload: %w", err)
	}
	if info.IsDir() {
		_ = fh.Close()
		return File{}, fmt.Errorf("upload %s is a directory", p)
	}
	name := filepath.Base(p)
	br := bufio.NewReaderSize(fh, sniffLen)
	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ctype == "" {
		head, _ := br.Peek(sniffLen)
		ctype = http.DetectContentType(head)
	}
	return File{
		Name:        name,
		ContentType: ctype,
		Size:        info.Size(),
		Body: struct {
			io.Reader
			io.Closer
		}{br, fh},
	}, nil
}

func detectContentType(name string, content []byte) string {
	if ctype := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ctype != "" {
		return ctype
	}
	head := content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return http.DetectContentType(head)
}

func closeBody(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}
