package naming

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutputName(t *testing.T) {
	at := time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "bare domain uses index",
			url:  "https://example.com",
			want: "example.com_index_20240307_150405.pdf",
		},
		{
			name: "trailing slash uses index",
			url:  "https://example.com/",
			want: "example.com_index_20240307_150405.pdf",
		},
		{
			name: "last path segment wins",
			url:  "https://example.com/blog/posts/hello-world",
			want: "example.com_hello_world_20240307_150405.pdf",
		},
		{
			name: "extension is dropped",
			url:  "https://example.com/docs/report.html",
			want: "example.com_report_20240307_150405.pdf",
		},
		{
			name: "only the final extension is dropped",
			url:  "https://example.com/files/archive.tar.gz",
			want: "example.com_archive_tar_20240307_150405.pdf",
		},
		{
			name: "non-word runs collapse to one underscore",
			url:  "https://example.com/a%20b%20%20c",
			want: "example.com_a_b_c_20240307_150405.pdf",
		},
		{
			name: "www is kept",
			url:  "https://www.example.com/page",
			want: "www.example.com_page_20240307_150405.pdf",
		},
		{
			name: "port is part of the host",
			url:  "http://localhost:8080/admin",
			want: "localhost:8080_admin_20240307_150405.pdf",
		},
		{
			name: "dot file is not treated as extension",
			url:  "https://example.com/.hidden",
			want: "example.com__hidden_20240307_150405.pdf",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, OutputName(u, at))
		})
	}
}
