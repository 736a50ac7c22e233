package generate

import (
	"log/slog"

	"github.com/lakeseed/lakeseed/pkg/frame"
)

// baseRates approximate real-world rates against USD. Daily values
// wobble within ±5% of these.
var baseRates = []struct {
	Currency string
	Rate     float64
}{
	{"GBP", 0.75}, {"EUR", 0.85}, {"CAD", 1.25}, {"AUD", 1.35},
	{"JPY", 110.0}, {"CNY", 6.45}, {"INR", 74.5},
}

func fxSchema() (frame.Schema, error) {
	return frame.NewSchema(
		frame.Field{Name: "date", Kind: frame.KindTimestamp},
		frame.Field{Name: "currency", Kind: frame.KindString},
		frame.Field{Name: "rate_to_usd", Kind: frame.KindFloat64},
		frame.Field{Name: "usd_to_currency", Kind: frame.KindFloat64},
	)
}

// buildFxRates generates one row per currency per day, ending the day
// before the generator's today.
func (g *Generator) buildFxRates(days int) (*frame.Batch, error) {
	rng := g.rng(streamFxRates)
	start := g.today().AddDate(0, 0, -days)

	schema, err := fxSchema()
	if err != nil {
		return nil, err
	}
	builder := frame.NewBuilder("fx_rates", schema)

	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		for _, base := range baseRates {
			daily := base.Rate * (1 + uniform(rng, -0.05, 0.05))
			err := builder.AppendRow(
				date,
				base.Currency,
				round4(daily),
				round4(1/daily),
			)
			if err != nil {
				return nil, err
			}
		}
	}

	batch := builder.Batch()
	g.logger.Debug("fx rates generated", slog.Int("rows", batch.NumRows()))
	return batch, nil
}
