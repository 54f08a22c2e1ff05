package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/lox/ecocast/internal/models"
)

const (
	lagCount         = 6
	defaultDays      = 15
	defaultEstimator = 3
	jitterPercent    = 0.05
	modelWeight      = 0.7
)

// Target ranges applied to every generated hour.
var (
	tempRange     = [2]float64{17, 38}
	humidityRange = [2]float64{0.4, 0.9}
	pressureRange = [2]float64{950, 1015}
	cloudRange    = [2]float64{0.1, 0.9}
	rainRange     = [2]float64{0, 100}
)

// ErrNotEnoughHistory is returned when the dataset is too short to build
// lag features.
var ErrNotEnoughHistory = errors.New("not enough hourly history")

// GenerateOptions controls a generator run.
type GenerateOptions struct {
	Days       int       // defaults to 15
	Estimators int       // stumps per ensemble, defaults to 3
	Start      time.Time // first forecast hour, truncated to 00:00 UTC
	Seed       uint64
}

const (
	targetTemp = iota
	targetHumidity
	targetPressure
	targetCloud
	targetRain
	targetCount
)

// Generate trains one ensemble per weather variable on the hourly history
// and rolls it forward hour by hour, returning daily means.
func Generate(records []models.HourlyRecord, opts GenerateOptions) ([]models.ForecastDay, error) {
	if opts.Days <= 0 {
		opts.Days = defaultDays
	}
	if opts.Estimators <= 0 {
		opts.Estimators = defaultEstimator
	}
	if len(records) <= lagCount {
		return nil, fmt.Errorf("%w: have %d rows, need more than %d", ErrNotEnoughHistory, len(records), lagCount)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	rain := make([]float64, len(records))
	for i, r := range records {
		rain[i] = rainLabel(r, rng)
	}

	var X [][]float64
	targets := make([][]float64, targetCount)
	base := newBaselines()
	for i := lagCount; i < len(records); i++ {
		X = append(X, features(records, i))
		r := records[i]
		targets[targetTemp] = append(targets[targetTemp], r.Temperature)
		targets[targetHumidity] = append(targets[targetHumidity], r.Humidity)
		targets[targetPressure] = append(targets[targetPressure], r.Pressure)
		targets[targetCloud] = append(targets[targetCloud], r.CloudCover)
		targets[targetRain] = append(targets[targetRain], rain[i])
		base.add(r)
	}

	regs := make([]*Regressor, targetCount)
	for t := range targetCount {
		regs[t] = FitRegressor(X, targets[t], opts.Estimators, rng)
	}

	row := append([]float64(nil), X[len(X)-1]...)
	current := opts.Start.UTC().Truncate(24 * time.Hour)
	agg := newDailyAggregate()

	for range opts.Days * 24 {
		var pred [targetCount]float64
		for t := range targetCount {
			pred[t] = regs[t].Predict(row)
		}
		pred[targetRain] = clamp(jitter(pred[targetRain], rng), rainRange)

		s := seasonal(current)
		pred[targetTemp] += s[targetTemp]
		pred[targetHumidity] += s[targetHumidity]
		pred[targetPressure] += s[targetPressure]
		pred[targetCloud] += s[targetCloud]

		hist, ok := base.mean(current)
		for t, bounds := range [][2]float64{tempRange, humidityRange, pressureRange, cloudRange} {
			v := pred[t]
			if ok {
				v = modelWeight*v + (1-modelWeight)*hist[t]
			}
			pred[t] = clamp(jitter(v, rng), bounds)
		}
		pred[targetRain] = clamp(jitter(pred[targetRain], rng), rainRange)

		agg.add(current, pred)

		for t := targetTemp; t <= targetCloud; t++ {
			lags := row[t*lagCount : (t+1)*lagCount]
			copy(lags[1:], lags[:lagCount-1])
			lags[0] = pred[t]
		}
		calendar := row[4*lagCount:]
		calendar[0] = float64(current.Hour())
		calendar[1] = float64(weekday(current))
		calendar[2] = float64(current.Month())

		current = current.Add(time.Hour)
	}

	return agg.days(), nil
}

// rainLabel derives a synthetic rain probability for a historical hour from
// its humidity and cloud cover.
func rainLabel(r models.HourlyRecord, rng *rand.Rand) float64 {
	switch {
	case r.Humidity > 0.75 && r.CloudCover > 0.6:
		return uniformIn(rng, 60, 100)
	case r.Humidity > 0.65 && r.CloudCover > 0.5:
		return uniformIn(rng, 30, 60)
	case r.CloudCover > 0.4 && r.Humidity > 0.5:
		return uniformIn(rng, 10, 30)
	default:
		return uniformIn(rng, 0, 10)
	}
}

// features builds the model input for record i: six lags each of
// temperature, humidity, pressure and cloud cover, then hour, weekday and
// month.
func features(records []models.HourlyRecord, i int) []float64 {
	x := make([]float64, 0, 4*lagCount+3)
	for _, get := range []func(models.HourlyRecord) float64{
		func(r models.HourlyRecord) float64 { return r.Temperature },
		func(r models.HourlyRecord) float64 { return r.Humidity },
		func(r models.HourlyRecord) float64 { return r.Pressure },
		func(r models.HourlyRecord) float64 { return r.CloudCover },
	} {
		for lag := 1; lag <= lagCount; lag++ {
			x = append(x, get(records[i-lag]))
		}
	}
	t := records[i].Time
	return append(x, float64(t.Hour()), float64(weekday(t)), float64(t.Month()))
}

// weekday counts from Monday = 0.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func seasonal(t time.Time) [4]float64 {
	phase := 2 * math.Pi * float64(t.YearDay()) / 365
	return [4]float64{
		4 * math.Sin(phase),
		0.1 * math.Sin(phase+math.Pi/2),
		4 * math.Sin(phase+math.Pi),
		0.2 * math.Sin(phase+math.Pi/4),
	}
}

func jitter(v float64, rng *rand.Rand) float64 {
	return v * (1 + uniformIn(rng, -jitterPercent, jitterPercent))
}

func uniformIn(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

func clamp(v float64, r [2]float64) float64 {
	return max(min(v, r[1]), r[0])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// baselines hold historical means per calendar day (month and day of month).
type baselines struct {
	sums   map[[2]int][4]float64
	counts map[[2]int]int
}

func newBaselines() *baselines {
	return &baselines{sums: map[[2]int][4]float64{}, counts: map[[2]int]int{}}
}

func (b *baselines) add(r models.HourlyRecord) {
	k := [2]int{int(r.Time.Month()), r.Time.Day()}
	s := b.sums[k]
	s[targetTemp] += r.Temperature
	s[targetHumidity] += r.Humidity
	s[targetPressure] += r.Pressure
	s[targetCloud] += r.CloudCover
	b.sums[k] = s
	b.counts[k]++
}

func (b *baselines) mean(t time.Time) ([4]float64, bool) {
	k := [2]int{int(t.Month()), t.Day()}
	n := b.counts[k]
	if n == 0 {
		return [4]float64{}, false
	}
	s := b.sums[k]
	for i := range s {
		s[i] /= float64(n)
	}
	return s, true
}

// dailyAggregate accumulates hourly predictions into per-day means.
type dailyAggregate struct {
	order  []string
	sums   map[string][targetCount]float64
	counts map[string]int
}

func newDailyAggregate() *dailyAggregate {
	return &dailyAggregate{sums: map[string][targetCount]float64{}, counts: map[string]int{}}
}

func (a *dailyAggregate) add(t time.Time, pred [targetCount]float64) {
	date := t.Format(models.DateLayout)
	if _, ok := a.counts[date]; !ok {
		a.order = append(a.order, date)
	}
	s := a.sums[date]
	for i, v := range pred {
		s[i] += v
	}
	a.sums[date] = s
	a.counts[date]++
}

func (a *dailyAggregate) days() []models.ForecastDay {
	out := make([]models.ForecastDay, 0, len(a.order))
	for _, date := range a.order {
		s := a.sums[date]
		n := float64(a.counts[date])
		for i := range s {
			s[i] /= n
		}
		day := models.ForecastDay{
			Date:        date,
			Temperature: round2(s[targetTemp]),
			Humidity:    round2(s[targetHumidity]),
			Pressure:    round2(s[targetPressure]),
			CloudCover:  round2(s[targetCloud]),
			RainChance:  round2(s[targetRain]),
		}
		day.Summary = DailySummary(day.RainChance, day.CloudCover)
		out = append(out, day)
	}
	return out
}
