package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

type fakeKafkaWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error { return nil }

func TestRedisStreamSink(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sink := NewRedisStreamSink(rdb, RedisStreamConfig{Stream: "audit-test", MaxLen: 10})
	e := sealedEvent()
	if err := sink.Write(context.Background(), e); err != nil {
		t.Fatalf("write: %v", err)
	}

	msgs, err := rdb.XRange(context.Background(), "audit-test", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(msgs))
	}
	if msgs[0].Values["id"] != e.EventID || msgs[0].Values["type"] != e.EventType {
		t.Fatalf("unexpected stream fields %v", msgs[0].Values)
	}

	var decoded Event
	if err := json.Unmarshal([]byte(msgs[0].Values["event"].(string)), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !Verify(decoded) {
		t.Fatal("event read back from the stream must verify")
	}
}

func TestRedisStreamSinkUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	sink := NewRedisStreamSink(rdb, RedisStreamConfig{})
	if err := sink.Write(context.Background(), sealedEvent()); err == nil {
		t.Fatal("expected error with redis down")
	}
}

func TestKafkaSink(t *testing.T) {
	fw := &fakeKafkaWriter{}
	sink := NewKafkaSinkWithWriter(fw)

	e := sealedEvent()
	if err := sink.Write(context.Background(), e); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != "acme" {
		t.Fatalf("expected partner key, got %q", fw.msgs[0].Key)
	}

	fw.err = errors.New("broker down")
	if err := sink.Write(context.Background(), e); err == nil {
		t.Fatal("expected writer error to propagate to the emitter")
	}
}

func TestNewKafkaSinkRequiresConfig(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{}); err == nil {
		t.Fatal("expected error without brokers")
	}
	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "widget-audit"})
	if err != nil {
		t.Fatalf("NewKafkaSink: %v", err)
	}
	_ = sink.Close()
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	sink, err := OpenSQLiteSink(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()
	ctx := context.Background()

	first := sealedEvent()
	second := Seal(Event{EventType: "widget_rate_limited", Severity: SeverityWarning}, first.Timestamp.Add(time.Second))

	for _, e := range []Event{first, second, first} {
		if err := sink.Write(ctx, e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	events, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected duplicate delivery to be ignored, got %d rows", len(events))
	}
	if events[0].EventID != second.EventID {
		t.Fatal("expected newest event first")
	}
	for _, e := range events {
		if !Verify(e) {
			t.Fatalf("stored event %s does not verify", e.EventID)
		}
	}
	if events[1].Metadata["origin"] != "https://shop.example" || !events[1].Success {
		t.Fatalf("fields not preserved: %+v", events[1])
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	if err := sink.Write(context.Background(), sealedEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	line := bytes.TrimSpace(buf.Bytes())
	var decoded Event
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Verify(decoded) {
		t.Fatal("json line must round trip with a valid hash")
	}
}
