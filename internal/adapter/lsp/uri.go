package lsp

import (
	"net/url"
	"strings"
)

// PathToURI converts an absolute file path to a file:// URI, percent-encoding
// spaces and other reserved characters.
func PathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}

// URIToPath converts a file:// URI back to a file path, decoding any
// percent-encoding so the result matches the path the document was opened
// under. Non-file URIs are returned unchanged.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return u.Path
}
