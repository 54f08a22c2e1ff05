package publish

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lox/ecocast/internal/dataset"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/models"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements the parts of mqtt.Client the publisher uses.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	err       error
	messages  []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func TestPublishForecast(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewWithClient(client, "")

	run := &models.ForecastRun{ID: 7, Source: "generator", Days: dataset.DefaultForecast()}
	if err := p.PublishForecast(run); err != nil {
		t.Fatalf("PublishForecast: %v", err)
	}

	msgs := client.sent()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.topic != "ecocast/forecast/latest" || !m.retained || m.qos != 1 {
		t.Errorf("message = %s qos=%d retained=%v", m.topic, m.qos, m.retained)
	}

	var got ForecastMessage
	if err := json.Unmarshal(m.payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != 7 || len(got.Days) != 15 || got.Averages.Count != 15 {
		t.Errorf("payload = run %d, %d days, count %d", got.RunID, len(got.Days), got.Averages.Count)
	}
}

func TestPublishLookup(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewWithClient(client, "wx")

	res := ingest.Result{Kind: ingest.KindRegion, Location: "Rajasthan", Error: ingest.MsgNoCoordinates}
	if err := p.PublishLookup(res); err != nil {
		t.Fatalf("PublishLookup: %v", err)
	}

	msgs := client.sent()
	if len(msgs) != 1 || msgs[0].topic != "wx/lookups/region" || msgs[0].retained {
		t.Fatalf("messages = %+v", msgs)
	}
	var got LookupMessage
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Location != "Rajasthan" || got.Error != ingest.MsgNoCoordinates || got.Timestamp.IsZero() {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublish_Errors(t *testing.T) {
	run := &models.ForecastRun{Days: dataset.DefaultForecast()}

	p := NewWithClient(&fakeClient{connected: false}, "")
	if err := p.PublishForecast(run); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}

	boom := errors.New("broker gone")
	p = NewWithClient(&fakeClient{connected: true, err: boom}, "")
	if err := p.PublishForecast(run); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestLookupHook(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewWithClient(client, "")

	l := ingest.NewLookups(nil, nil, ingest.NewMock(0, 3))
	l.OnResult(p.LookupHook())
	l.World(t.Context(), 250, 125)

	deadline := time.Now().Add(2 * time.Second)
	for len(client.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	msgs := client.sent()
	if len(msgs) != 1 || msgs[0].topic != "ecocast/lookups/world" {
		t.Fatalf("messages = %+v", msgs)
	}
}
