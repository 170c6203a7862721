package audio

import (
	"errors"
	"testing"
)

func TestDeduplicator_Observe(t *testing.T) {
	d := NewDeduplicator()

	if !d.Observe("item_1", []byte("AAAA")) {
		t.Error("first payload should be new")
	}
	if d.Observe("item_1", []byte("AAAA")) {
		t.Error("repeated payload should be a duplicate")
	}
	if !d.Observe("item_2", []byte("AAAA")) {
		t.Error("same payload in another utterance should be new")
	}

	d.Forget("item_1")
	if !d.Observe("item_1", []byte("AAAA")) {
		t.Error("payload should be new after forget")
	}
	if d.Utterances() != 2 {
		t.Errorf("expected 2 tracked utterances, got %d", d.Utterances())
	}

	d.Reset()
	if d.Utterances() != 0 {
		t.Errorf("expected no tracked utterances after reset, got %d", d.Utterances())
	}
}

func TestDecoder_ExactlyOnce(t *testing.T) {
	dec := NewDecoder(nil)
	payloads := []string{
		EncodePCM16([]int16{1, 2, 3}),
		EncodePCM16([]int16{4, 5, 6}),
	}
	stream := []string{payloads[0], payloads[1], payloads[0], payloads[1], payloads[1]}

	var accepted int
	for _, p := range stream {
		buf, err := dec.Decode("item_1", p)
		switch {
		case err == nil:
			accepted++
			if len(buf) != 3 {
				t.Errorf("expected 3 samples, got %d", len(buf))
			}
		case errors.Is(err, ErrDuplicate):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != len(payloads) {
		t.Errorf("expected %d accepted chunks, got %d", len(payloads), accepted)
	}

	dec.Done("item_1")
	if _, err := dec.Decode("item_1", payloads[0]); err != nil {
		t.Errorf("payload should decode again after done: %v", err)
	}
}

func TestDecoder_Errors(t *testing.T) {
	dec := NewDecoder(NewDeduplicator())

	if _, err := dec.Decode("item_1", ""); !errors.Is(err, ErrEmptyChunk) {
		t.Errorf("expected ErrEmptyChunk, got %v", err)
	}
	if _, err := dec.Decode("item_1", "%%%"); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("expected ErrInvalidEncoding, got %v", err)
	}
	if _, err := dec.Decode("item_1", "AQID"); !errors.Is(err, ErrOddLength) {
		t.Errorf("expected ErrOddLength, got %v", err)
	}
}

func TestDecoder_Normalizes(t *testing.T) {
	dec := NewDecoder(nil)
	buf, err := dec.Decode("item_1", EncodePCM16([]int16{-32768, 16384}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf[0] != -1 || buf[1] != 0.5 {
		t.Errorf("unexpected samples %v", buf)
	}
}
