package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/singleflight"

	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/htmlutil"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/store"
)

const DefaultModel = openai.ChatModelGPT4oMini

// failureTTL is how long a failed completion is remembered before the
// model is asked again.
const failureTTL = time.Minute

const systemPrompt = "You write short, plain weather outlooks for a public dashboard. " +
	"Use at most three sentences. Do not use markdown or HTML. Do not invent numbers."

// Completer turns a system and user prompt into a reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type openAICompleter struct {
	client openai.Client
	model  string
}

func (c *openAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Writer produces the outlook shown under the forecast summary cards.
// Outlooks for stored runs are cached in the store; the built-in forecast
// (run ID 0) is cached in memory. Concurrent requests for the same forecast
// share one completion, and failures are remembered for failureTTL.
type Writer struct {
	llm   Completer
	model string
	store *store.Store
	now   func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	memory   map[string]string
	failures map[string]failure
}

type failure struct {
	err   error
	until time.Time
}

// New returns nil when apiKey is empty so callers can skip the section.
func New(apiKey, model string, st *store.Store) *Writer {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = DefaultModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewWithCompleter(&openAICompleter{client: client, model: model}, model, st)
}

func NewWithCompleter(llm Completer, model string, st *store.Store) *Writer {
	return &Writer{
		llm:      llm,
		model:    model,
		store:    st,
		now:      time.Now,
		memory:   make(map[string]string),
		failures: make(map[string]failure),
	}
}

// ForRun returns the outlook for a forecast, generating it on first use.
func (w *Writer) ForRun(ctx context.Context, run *models.ForecastRun) (string, error) {
	if run == nil || len(run.Days) == 0 {
		return "", nil
	}

	key := memoryKey(run)
	if text, ok, err := w.cached(run, key); ok || err != nil {
		return text, err
	}

	v, err, _ := w.group.Do(key, func() (any, error) {
		// Another flight may have finished between the check above and here.
		if text, ok, err := w.cached(run, key); ok || err != nil {
			return text, err
		}
		text, err := w.generate(ctx, run)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.mu.Lock()
				w.failures[key] = failure{err: err, until: w.now().Add(failureTTL)}
				w.mu.Unlock()
			}
			return "", err
		}
		w.save(run, key, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// cached reports a previously generated outlook or a recent failure.
func (w *Writer) cached(run *models.ForecastRun, key string) (string, bool, error) {
	w.mu.Lock()
	if f, ok := w.failures[key]; ok {
		if w.now().Before(f.until) {
			w.mu.Unlock()
			return "", false, fmt.Errorf("outlook unavailable: %w", f.err)
		}
		delete(w.failures, key)
	}
	text, ok := w.memory[key]
	w.mu.Unlock()
	if ok {
		return text, true, nil
	}

	if run.ID > 0 && w.store != nil {
		text, err := w.store.GetNarrative(run.ID)
		if err != nil {
			return "", false, fmt.Errorf("get narrative: %w", err)
		}
		if text != "" {
			return text, true, nil
		}
	}
	return "", false, nil
}

func (w *Writer) generate(ctx context.Context, run *models.ForecastRun) (string, error) {
	reply, err := w.llm.Complete(ctx, systemPrompt, BuildPrompt(run.Days))
	if err != nil {
		return "", err
	}
	text := htmlutil.ToText(reply)
	if text == "" {
		return "", errors.New("empty outlook")
	}
	return text, nil
}

func (w *Writer) save(run *models.ForecastRun, key, text string) {
	if run.ID > 0 && w.store != nil {
		err := w.store.SaveNarrative(run.ID, w.model, text)
		if err == nil {
			return
		}
		slog.Error("save narrative", "run", run.ID, "error", err)
	}
	w.mu.Lock()
	w.memory[key] = text
	w.mu.Unlock()
}

func memoryKey(run *models.ForecastRun) string {
	return fmt.Sprintf("%d:%s:%s:%s", run.ID, run.Source, run.Days[0].Date, run.Days[len(run.Days)-1].Date)
}

// BuildPrompt lists the forecast facts the outlook may draw on.
func BuildPrompt(days []models.ForecastDay) string {
	avg := forecast.Summarize(days)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write an outlook for this %d-day forecast.\n", len(days))
	fmt.Fprintf(&sb, "Averages: temperature %s, rain chance %s, humidity %s, pressure %s.\n",
		avg.TemperatureText(), avg.RainChanceText(), avg.HumidityText(), avg.PressureText())
	sb.WriteString("Days:\n")
	for _, d := range days {
		fmt.Fprintf(&sb, "- %s: %s. %d°C, rain %d%%, cloud %d%%.\n",
			d.Date, d.Summary, int(math.Round(d.Temperature)), int(math.Round(d.RainChance)), int(math.Round(d.CloudCover*100)))
	}
	return sb.String()
}
