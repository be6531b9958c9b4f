package httpwire

import "testing"

func TestResponseParserSimple(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\n")
	p := NewResponseParser()
	n, err := p.Feed(raw)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if n != len(raw) || !p.Done() {
		t.Fatalf("expected fully consumed and done")
	}
	resp := p.Response()
	if resp.StatusCode != 200 || resp.Reason != "OK" {
		t.Fatalf("unexpected status: %d %q", resp.StatusCode, resp.Reason)
	}
	if resp.ContentType != "text/plain" || !resp.HasContentLength || resp.ContentLength != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestResponseParserNoReasonPhrase(t *testing.T) {
	raw := []byte("HTTP/1.1 204\r\n\r\n")
	p := NewResponseParser()
	if _, err := p.Feed(raw); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if p.Response().StatusCode != 204 {
		t.Fatalf("unexpected status code: %d", p.Response().StatusCode)
	}
	if p.Response().HasBody() {
		t.Fatalf("204 must not have a body")
	}
}

func TestResponseWebSocketUpgradeFields(t *testing.T) {
	raw := []byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n")
	p := NewResponseParser()
	if _, err := p.Feed(raw); err != nil {
		t.Fatalf("feed: %v", err)
	}
	resp := p.Response()
	if resp.Upgrade != "websocket" || resp.SecWebSocketAccept != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("unexpected handshake response: %+v", resp)
	}
}

func TestResponseParserHeadersExcludesTypedFields(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nX-Custom: keep-me\r\n\r\n")
	p := NewResponseParser()
	if _, err := p.Feed(raw); err != nil {
		t.Fatalf("feed: %v", err)
	}
	resp := p.Response()
	if len(resp.Headers) != 1 || resp.Headers[0].Name != "X-Custom" {
		t.Fatalf("expected only X-Custom to survive into Headers, got %+v", resp.Headers)
	}
}

func TestResponseSerializeRoundTrip(t *testing.T) {
	raw := []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n")
	p := NewResponseParser()
	if _, err := p.Feed(raw); err != nil {
		t.Fatalf("feed: %v", err)
	}
	again := NewResponseParser()
	if _, err := again.Feed(p.Response().Serialize()); err != nil {
		t.Fatalf("re-feed: %v", err)
	}
	if again.Response().StatusCode != 404 || again.Response().Reason != "Not Found" {
		t.Fatalf("round-trip mismatch: %+v", again.Response())
	}
}
