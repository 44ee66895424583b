package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/callcraft-ai/callcraft/pkg/types"
)

func TestDecodeInbound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		frame   string
		want    Inbound
		wantErr bool
	}{
		{"start with persona", `{"type":"start","persona":"B"}`, Inbound{Kind: InboundStart, Persona: types.PersonaB}, false},
		{"start defaults to A", `{"type":"start"}`, Inbound{Kind: InboundStart, Persona: types.PersonaA}, false},
		{"start invalid persona", `{"type":"start","persona":"Z"}`, Inbound{}, true},
		{"stop", `{"type":"stop"}`, Inbound{Kind: InboundStop}, false},
		{"final audio complete", `{"type":"final_audio_complete"}`, Inbound{Kind: InboundFinalAudioComplete}, false},
		{"not json", `hello`, Inbound{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeInbound([]byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("decoded = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeInboundUnknownType(t *testing.T) {
	t.Parallel()

	_, err := DecodeInbound([]byte(`{"type":"ping"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
}

func TestNewVADMapsEventKinds(t *testing.T) {
	t.Parallel()

	got := NewVAD(types.VADEvent{Kind: types.VADKindUtterance, Phase: "begin"})
	if u, ok := got.(Utterance); !ok || u.Type != "utterance" || u.Phase != "begin" {
		t.Errorf("utterance mapping = %+v", got)
	}

	got = NewVAD(types.VADEvent{Kind: types.VADKindState, State: "speech", Probability: 0.93})
	if v, ok := got.(VADState); !ok || v.Type != "vad" || v.State != "speech" || v.Prob != 0.93 {
		t.Errorf("state mapping = %+v", got)
	}
}

func TestOutboundTypeTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event any
		want  string
	}{
		{NewStatus("ready"), `{"type":"status","message":"ready"}`},
		{NewASRFinal("hi"), `{"type":"asr_final","text":"hi"}`},
		{NewLLMToken("to"), `{"type":"llm_token","text":"to"}`},
		{NewAudioStart(), `{"type":"audio_start"}`},
		{NewSegmentDone(true), `{"type":"segment_done","is_final":true}`},
		{NewTurnDone(), `{"type":"turn_done"}`},
		{NewHangup(), `{"type":"hangup"}`},
		{NewDone(), `{"type":"done"}`},
		{NewClear(), `{"type":"clear"}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.event)
		if err != nil {
			t.Fatalf("marshal %T: %v", tt.event, err)
		}
		if string(b) != tt.want {
			t.Errorf("%T = %s, want %s", tt.event, b, tt.want)
		}
	}
}
