package inworld

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// encodeChunk wraps pcm in a fake 44-byte WAV header and returns the JSON
// stream line the API would send.
func encodeChunk(t *testing.T, pcm []byte) string {
	t.Helper()
	wav := append(make([]byte, wavHeaderLen), pcm...)
	line := map[string]any{
		"result": map[string]any{"audioContent": base64.StdEncoding.EncodeToString(wav)},
	}
	b, err := json.Marshal(line)
	if err != nil {
		t.Fatalf("marshal line: %v", err)
	}
	return string(b)
}

func TestDecodeLine(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	good := encodeChunk(t, pcm)

	tests := []struct {
		name   string
		line   string
		want   []byte
		wantOK bool
	}{
		{"valid chunk", good, pcm, true},
		{"empty line", "", nil, false},
		{"whitespace line", "   ", nil, false},
		{"malformed json", `{"result":`, nil, false},
		{"no audio content", `{"result":{}}`, nil, false},
		{"bad base64", `{"result":{"audioContent":"!!!"}}`, nil, false},
		{
			// Header only, no samples behind it.
			"header only",
			fmt.Sprintf(`{"result":{"audioContent":%q}}`,
				base64.StdEncoding.EncodeToString(make([]byte, wavHeaderLen))),
			nil, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := decodeLine([]byte(tt.line))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("pcm = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSynthesizeStreamsPCM(t *testing.T) {
	t.Parallel()

	var gotReq synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Basic a2V5" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintln(w, encodeChunk(t, []byte{0xAA, 0xBB}))
		fmt.Fprintln(w) // blank keep-alive line
		fmt.Fprintln(w, encodeChunk(t, []byte{0xCC}))
	}))
	defer srv.Close()

	p, err := New("a2V5", WithEndpoint(srv.URL), WithVoice("Mark"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var chunks [][]byte
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if !bytes.Equal(chunks[0], []byte{0xAA, 0xBB}) || !bytes.Equal(chunks[1], []byte{0xCC}) {
		t.Errorf("chunks = %v", chunks)
	}

	if gotReq.Text != "Hello there." {
		t.Errorf("request text = %q", gotReq.Text)
	}
	if gotReq.VoiceID != "Mark" || gotReq.ModelID != defaultModelID {
		t.Errorf("voice/model = %q/%q", gotReq.VoiceID, gotReq.ModelID)
	}
	if gotReq.AudioConfig.AudioEncoding != "LINEAR16" || gotReq.AudioConfig.SampleRateHertz != defaultSampleRate {
		t.Errorf("audio config = %+v", gotReq.AudioConfig)
	}
}

func TestSynthesizeEmptyTextSkipsRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("request sent for empty text")
	}))
	defer srv.Close()

	p, err := New("a2V5", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Synthesize(context.Background(), "   \n")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, open := <-ch; open {
		t.Error("channel not closed immediately")
	}
}

func TestSynthesizeHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	p, err := New("a2V5", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("403 response accepted")
	}
}
