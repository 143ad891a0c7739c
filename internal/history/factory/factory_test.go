package factory

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/loykin/displayhold/internal/history/opensearch"
)

func TestFactoryDSNTypes(t *testing.T) {
	tests := []struct {
		name        string
		dsn         string
		expectError bool
	}{
		{"Empty DSN", "", true},
		{"Invalid scheme", "invalid://test", true},
		{"SQLite file DSN", "sqlite://" + filepath.Join(t.TempDir(), "h.db"), false},
		{"SQLite bare path", filepath.Join(t.TempDir(), "bare.db"), false},
		{"SQLite memory DSN", "sqlite://:memory:", false},
		{"OpenSearch DSN", "opensearch://localhost:9200/coordination", false},
		{"ClickHouse unreachable", "clickhouse://127.0.0.1:1/default?table=events", true},
		{"ClickHouse bad table", "clickhouse://127.0.0.1:1?table=a-b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(tt.dsn)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for DSN %q, got nil", tt.dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for DSN %q: %v", tt.dsn, err)
			}
			if sink == nil {
				t.Fatalf("expected non-nil sink for DSN %q", tt.dsn)
			}
			if closer, ok := sink.(io.Closer); ok {
				_ = closer.Close()
			}
		})
	}
}

func TestParseOpenSearchDSN(t *testing.T) {
	for dsn, want := range map[string]string{
		"opensearch://localhost:9200/logs":  "http://localhost:9200/logs/_doc",
		"opensearch://localhost:9200":       "http://localhost:9200/displayhold-history/_doc",
		"opensearchs://search.local/events": "https://search.local/events/_doc",
		"elasticsearch://localhost:9200/ev": "http://localhost:9200/ev/_doc",
	} {
		sink, err := parseOpenSearchDSN(dsn)
		if err != nil {
			t.Fatalf("%s: %v", dsn, err)
		}
		os, ok := sink.(*opensearch.Sink)
		if !ok {
			t.Fatalf("%s: unexpected sink type %T", dsn, sink)
		}
		if os.Endpoint() != want {
			t.Errorf("%s: endpoint %q, want %q", dsn, os.Endpoint(), want)
		}
	}
}
