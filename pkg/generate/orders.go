package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/frame"
)

var orderStatuses = []string{"Completed", "Shipped", "Processing", "Cancelled"}

var paymentMethods = []string{"Credit Card", "PayPal", "Bank Transfer", "Cash on Delivery"}

// LineItem is one order line. The columnar frame is flat-typed, so
// lines are carried as a JSON string column on the order row.
type LineItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Discount  float64 `json:"discount"`
	LineTotal float64 `json:"line_total"`
}

func orderSchema() (frame.Schema, error) {
	return frame.NewSchema(
		frame.Field{Name: "order_id", Kind: frame.KindString},
		frame.Field{Name: "customer_id", Kind: frame.KindString},
		frame.Field{Name: "order_date", Kind: frame.KindTimestamp},
		frame.Field{Name: "order_status", Kind: frame.KindString},
		frame.Field{Name: "payment_method", Kind: frame.KindString},
		frame.Field{Name: "currency", Kind: frame.KindString},
		frame.Field{Name: "subtotal", Kind: frame.KindFloat64},
		frame.Field{Name: "tax_amount", Kind: frame.KindFloat64},
		frame.Field{Name: "shipping_cost", Kind: frame.KindFloat64},
		frame.Field{Name: "discount_amount", Kind: frame.KindFloat64},
		frame.Field{Name: "total_amount", Kind: frame.KindFloat64},
		frame.Field{Name: "item_count", Kind: frame.KindInt64},
		frame.Field{Name: "items", Kind: frame.KindString},
		frame.Field{Name: "shipping_address", Kind: frame.KindString},
		frame.Field{Name: "billing_address", Kind: frame.KindString},
		frame.Field{Name: "created_at", Kind: frame.KindTimestamp},
		frame.Field{Name: "updated_at", Kind: frame.KindTimestamp},
	)
}

// buildOrders generates n orders referencing existing customers and
// products. Dates cluster near the start of a one-year window via a
// Beta(2,5) draw. total_amount always equals
// subtotal + tax + shipping - discount.
func (g *Generator) buildOrders(ctx context.Context, n int, customers []customerRef, products []productRef) (*frame.Batch, error) {
	if len(customers) == 0 || len(products) == 0 {
		return nil, errors.New(errors.CodeUnknown, "orders require generated customers and products")
	}

	rng := g.rng(streamOrders)
	start := g.today().AddDate(0, 0, -365)

	schema, err := orderSchema()
	if err != nil {
		return nil, err
	}
	builder := frame.NewBuilder("orders", schema)

	var bar *progressbar.ProgressBar
	if g.progress != nil {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetWriter(g.progress),
			progressbar.OptionSetDescription("generating orders"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	for i := 0; i < n; i++ {
		if i%10000 == 0 {
			select {
			case <-ctx.Done():
				return nil, errors.ContextCanceled("order generation")
			default:
			}
		}

		cust := customers[rng.Intn(len(customers))]
		daysBack := int(betaSkew(rng) * 365)
		orderDate := start.AddDate(0, 0, daysBack)

		numItems := 1 + rng.Intn(10)
		items := make([]LineItem, numItems)
		subtotal := 0.0
		for j := range items {
			p := products[rng.Intn(len(products))]
			qty := 1 + rng.Intn(5)
			discount := 0.0
			if rng.Float64() > 0.7 {
				discount = round2(uniform(rng, 0, 0.2))
			}
			lineTotal := round2(p.SalePrice * float64(qty) * (1 - discount))
			items[j] = LineItem{
				ProductID: p.ID,
				Quantity:  qty,
				UnitPrice: p.SalePrice,
				Discount:  discount,
				LineTotal: lineTotal,
			}
			subtotal += lineTotal
		}
		subtotal = round2(subtotal)

		tax := round2(subtotal * 0.08)
		shipping := round2(uniform(rng, 0, 50))
		discountAmount := round2(subtotal * uniform(rng, 0, 0.15))
		total := round2(subtotal + tax + shipping - discountAmount)

		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "failed to encode order items")
		}

		err = builder.AppendRow(
			fmt.Sprintf("ORD_%08d", i+1),
			cust.ID,
			orderDate,
			pick(rng, orderStatuses),
			pick(rng, paymentMethods),
			cust.Currency,
			subtotal,
			tax,
			shipping,
			discountAmount,
			total,
			int64(numItems),
			string(itemsJSON),
			cust.Address,
			cust.Address,
			orderDate,
			orderDate.Add(time.Duration(1+rng.Intn(24))*time.Hour),
		)
		if err != nil {
			return nil, err
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	batch := builder.Batch()
	g.logger.Debug("orders generated", slog.Int("rows", batch.NumRows()))
	return batch, nil
}

// SetProgress renders an orders progress bar to w during generation.
func (g *Generator) SetProgress(w io.Writer) *Generator {
	g.progress = w
	return g
}
