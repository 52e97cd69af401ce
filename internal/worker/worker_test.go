package worker

import (
	"context"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

// The shutdown path closes the message channel and waits for the
// goroutines before touching the DB or the consumer, so a buffered
// message must still be handled and the loop must exit on its own.
func TestWorkerDrainsBufferedMessagesOnClose(t *testing.T) {
	zlog.Init()
	w := &Worker{logger: &zlog.Logger}

	messages := make(chan kafka.Message, 2)
	messages <- kafka.Message{Value: []byte("not json")}
	messages <- kafka.Message{Value: []byte("{")}
	close(messages)

	done := make(chan struct{})
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.worker(context.Background(), 0, messages)
	}()
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after the message channel closed")
	}
	if len(messages) != 0 {
		t.Fatalf("expected the buffered messages to be drained, %d left", len(messages))
	}
}
