package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/lakeseed/lakeseed/pkg/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
}

func testGenerator(cfg Config) *Generator {
	return NewGenerator(cfg, quietLogger()).SetClock(fixedNow)
}

func TestAllDeterministic(t *testing.T) {
	ctx := context.Background()

	first, err := testGenerator(Config{Scale: ScaleSmall}).All(ctx)
	if err != nil {
		t.Fatalf("first All: %v", err)
	}
	second, err := testGenerator(Config{Scale: ScaleSmall}).All(ctx)
	if err != nil {
		t.Fatalf("second All: %v", err)
	}

	if !first.Customers.Equal(second.Customers) {
		t.Error("customers differ across identical seeds")
	}
	if !first.Products.Equal(second.Products) {
		t.Error("products differ across identical seeds")
	}
	if !first.FxRates.Equal(second.FxRates) {
		t.Error("fx rates differ across identical seeds")
	}
	if !first.Orders.Equal(second.Orders) {
		t.Error("orders differ across identical seeds")
	}

	counts := ScaleSmall.Counts()
	if first.Customers.NumRows() != counts.Customers {
		t.Errorf("customers = %d, want %d", first.Customers.NumRows(), counts.Customers)
	}
	if first.Products.NumRows() != counts.Products {
		t.Errorf("products = %d, want %d", first.Products.NumRows(), counts.Products)
	}
	if first.Orders.NumRows() != counts.Orders {
		t.Errorf("orders = %d, want %d", first.Orders.NumRows(), counts.Orders)
	}
	if first.FxRates.NumRows() != 365*len(baseRates) {
		t.Errorf("fx rows = %d, want %d", first.FxRates.NumRows(), 365*len(baseRates))
	}
}

func TestSeedChangesOutput(t *testing.T) {
	a, err := testGenerator(Config{Seed: 1}).Customers(50)
	if err != nil {
		t.Fatalf("Customers: %v", err)
	}
	b, err := testGenerator(Config{Seed: 2}).Customers(50)
	if err != nil {
		t.Fatalf("Customers: %v", err)
	}
	if a.Equal(b) {
		t.Error("different seeds produced identical customers")
	}
}

func TestCustomersShape(t *testing.T) {
	g := testGenerator(Config{})
	batch, refs, err := g.buildCustomers(200)
	if err != nil {
		t.Fatalf("buildCustomers: %v", err)
	}
	if batch.NumRows() != 200 || len(refs) != 200 {
		t.Fatalf("rows = %d refs = %d, want 200", batch.NumRows(), len(refs))
	}

	currencyByCountry := make(map[string]string, len(countryCurrencies))
	for _, cc := range countryCurrencies {
		currencyByCountry[cc.Country] = cc.Currency
	}
	segmentSet := map[string]bool{"Bronze": true, "Silver": true, "Gold": true, "Platinum": true}

	ids := batch.Column("customer_id").Strings
	countries := batch.Column("country").Strings
	currencies := batch.Column("currency").Strings
	segs := batch.Column("segment").Strings
	reg := batch.Column("registration_date").Times
	lastOrder := batch.Column("last_order_date")

	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	regFrom := today.AddDate(-2, 0, 0)

	nulls := 0
	for i := 0; i < batch.NumRows(); i++ {
		if want := "CUST_"; !strings.HasPrefix(ids[i], want) || len(ids[i]) != 11 {
			t.Fatalf("id[%d] = %q", i, ids[i])
		}
		if currencyByCountry[countries[i]] != currencies[i] {
			t.Errorf("row %d: country %s paired with %s", i, countries[i], currencies[i])
		}
		if !segmentSet[segs[i]] {
			t.Errorf("row %d: segment %q", i, segs[i])
		}
		if reg[i].Before(regFrom) || reg[i].After(today) {
			t.Errorf("row %d: registration %v outside window", i, reg[i])
		}
		if lastOrder.IsNull(i) {
			nulls++
		}
	}
	if ids[0] != "CUST_000001" {
		t.Errorf("first id = %q", ids[0])
	}
	// ~10% of customers have never ordered.
	if nulls < 4 || nulls > 50 {
		t.Errorf("last_order_date nulls = %d of 200, want around 20", nulls)
	}
}

func TestProductsShape(t *testing.T) {
	g := testGenerator(Config{})
	batch, refs, err := g.buildProducts(300)
	if err != nil {
		t.Fatalf("buildProducts: %v", err)
	}
	if batch.NumRows() != 300 || len(refs) != 300 {
		t.Fatalf("rows = %d refs = %d, want 300", batch.NumRows(), len(refs))
	}

	marginByCategory := make(map[string]float64, len(productCategories))
	for _, cat := range productCategories {
		marginByCategory[cat.Name] = cat.Margin
	}
	supplierRe := regexp.MustCompile(`^SUP_\d{3}$`)

	cats := batch.Column("category").Strings
	base := batch.Column("base_price").Floats
	sale := batch.Column("sale_price").Floats
	cost := batch.Column("cost_price").Floats
	suppliers := batch.Column("supplier_id").Strings
	active := batch.Column("is_active").Bools

	activeCount := 0
	for i := 0; i < batch.NumRows(); i++ {
		margin, ok := marginByCategory[cats[i]]
		if !ok {
			t.Fatalf("row %d: unknown category %q", i, cats[i])
		}
		if sale[i] < base[i]*0.7-0.02 || sale[i] > base[i]*1.1+0.02 {
			t.Errorf("row %d: sale %.2f outside [-30%%,+10%%] of base %.2f", i, sale[i], base[i])
		}
		wantCost := base[i] * (1 - margin)
		if math.Abs(cost[i]-wantCost) > 0.02 {
			t.Errorf("row %d: cost %.2f, want %.2f", i, cost[i], wantCost)
		}
		if !supplierRe.MatchString(suppliers[i]) {
			t.Errorf("row %d: supplier %q", i, suppliers[i])
		}
		if active[i] {
			activeCount++
		}
	}
	// 95% active on average.
	if activeCount < 250 {
		t.Errorf("active products = %d of 300, want most", activeCount)
	}
}

func TestFxRatesShape(t *testing.T) {
	g := testGenerator(Config{})
	batch, err := g.buildFxRates(10)
	if err != nil {
		t.Fatalf("buildFxRates: %v", err)
	}
	if batch.NumRows() != 10*len(baseRates) {
		t.Fatalf("rows = %d, want %d", batch.NumRows(), 10*len(baseRates))
	}

	rateByCurrency := make(map[string]float64, len(baseRates))
	for _, br := range baseRates {
		rateByCurrency[br.Currency] = br.Rate
	}

	dates := batch.Column("date").Times
	currencies := batch.Column("currency").Strings
	rates := batch.Column("rate_to_usd").Floats
	inverse := batch.Column("usd_to_currency").Floats

	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -10)

	for i := 0; i < batch.NumRows(); i++ {
		base := rateByCurrency[currencies[i]]
		if base == 0 {
			t.Fatalf("row %d: unknown currency %q", i, currencies[i])
		}
		if rates[i] < base*0.95-0.0001 || rates[i] > base*1.05+0.0001 {
			t.Errorf("row %d: %s rate %.4f outside ±5%% of %.2f", i, currencies[i], rates[i], base)
		}
		if inverse[i] <= 0 {
			t.Errorf("row %d: inverse rate %.4f", i, inverse[i])
		}
		if dates[i].Before(start) || !dates[i].Before(today) {
			t.Errorf("row %d: date %v outside [%v, %v)", i, dates[i], start, today)
		}
	}
	if !dates[0].Equal(start) {
		t.Errorf("first date = %v, want %v", dates[0], start)
	}
	if last := dates[batch.NumRows()-1]; !last.Equal(today.AddDate(0, 0, -1)) {
		t.Errorf("last date = %v, want %v", last, today.AddDate(0, 0, -1))
	}
}

func TestOrdersReferencesAndTotals(t *testing.T) {
	ctx := context.Background()
	g := testGenerator(Config{})

	_, customers, err := g.buildCustomers(50)
	if err != nil {
		t.Fatalf("buildCustomers: %v", err)
	}
	_, products, err := g.buildProducts(20)
	if err != nil {
		t.Fatalf("buildProducts: %v", err)
	}
	batch, err := g.buildOrders(ctx, 300, customers, products)
	if err != nil {
		t.Fatalf("buildOrders: %v", err)
	}
	if batch.NumRows() != 300 {
		t.Fatalf("rows = %d, want 300", batch.NumRows())
	}

	customerSet := make(map[string]bool, len(customers))
	for _, c := range customers {
		customerSet[c.ID] = true
	}
	productSet := make(map[string]bool, len(products))
	for _, p := range products {
		productSet[p.ID] = true
	}

	custIDs := batch.Column("customer_id").Strings
	orderDates := batch.Column("order_date").Times
	subtotals := batch.Column("subtotal").Floats
	taxes := batch.Column("tax_amount").Floats
	shipping := batch.Column("shipping_cost").Floats
	discounts := batch.Column("discount_amount").Floats
	totals := batch.Column("total_amount").Floats
	itemCounts := batch.Column("item_count").Ints
	itemsJSON := batch.Column("items").Strings
	created := batch.Column("created_at").Times
	updated := batch.Column("updated_at").Times

	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	windowStart := today.AddDate(0, 0, -365)

	for i := 0; i < batch.NumRows(); i++ {
		if !customerSet[custIDs[i]] {
			t.Fatalf("row %d: order references unknown customer %q", i, custIDs[i])
		}
		if orderDates[i].Before(windowStart) || orderDates[i].After(today) {
			t.Errorf("row %d: order date %v outside window", i, orderDates[i])
		}

		wantTotal := round2(subtotals[i] + taxes[i] + shipping[i] - discounts[i])
		if math.Abs(totals[i]-wantTotal) > 0.005 {
			t.Errorf("row %d: total %.2f, want %.2f", i, totals[i], wantTotal)
		}
		if wantTax := round2(subtotals[i] * 0.08); math.Abs(taxes[i]-wantTax) > 0.005 {
			t.Errorf("row %d: tax %.2f, want %.2f", i, taxes[i], wantTax)
		}

		var items []LineItem
		if err := json.Unmarshal([]byte(itemsJSON[i]), &items); err != nil {
			t.Fatalf("row %d: items column: %v", i, err)
		}
		if len(items) != int(itemCounts[i]) || len(items) < 1 || len(items) > 10 {
			t.Fatalf("row %d: %d items, item_count %d", i, len(items), itemCounts[i])
		}
		lineSum := 0.0
		for _, item := range items {
			if !productSet[item.ProductID] {
				t.Fatalf("row %d: item references unknown product %q", i, item.ProductID)
			}
			if item.Quantity < 1 || item.Quantity > 5 {
				t.Errorf("row %d: quantity %d", i, item.Quantity)
			}
			wantLine := round2(item.UnitPrice * float64(item.Quantity) * (1 - item.Discount))
			if math.Abs(item.LineTotal-wantLine) > 0.005 {
				t.Errorf("row %d: line total %.2f, want %.2f", i, item.LineTotal, wantLine)
			}
			lineSum += item.LineTotal
		}
		if math.Abs(round2(lineSum)-subtotals[i]) > 0.005 {
			t.Errorf("row %d: subtotal %.2f, lines sum to %.2f", i, subtotals[i], lineSum)
		}
		if !updated[i].After(created[i]) {
			t.Errorf("row %d: updated_at %v not after created_at %v", i, updated[i], created[i])
		}
	}
}

func TestAllContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testGenerator(Config{Scale: ScaleSmall}).All(ctx)
	if !errors.IsCode(err, errors.CodeContextCanceled) {
		t.Fatalf("err = %v, want %s", err, errors.CodeContextCanceled)
	}
}

func TestOrdersWithoutReferences(t *testing.T) {
	g := testGenerator(Config{})
	if _, err := g.buildOrders(context.Background(), 10, nil, nil); err == nil {
		t.Fatal("order generation without references succeeded")
	}
}

func TestProgressWriter(t *testing.T) {
	g := testGenerator(Config{})
	var buf bytes.Buffer
	g.SetProgress(&buf)

	_, customers, err := g.buildCustomers(5)
	if err != nil {
		t.Fatalf("buildCustomers: %v", err)
	}
	_, products, err := g.buildProducts(5)
	if err != nil {
		t.Fatalf("buildProducts: %v", err)
	}
	if _, err := g.buildOrders(context.Background(), 20, customers, products); err != nil {
		t.Fatalf("buildOrders: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("progress writer received no output")
	}
}

func TestParseScale(t *testing.T) {
	for _, ok := range []string{"small", "medium", "large"} {
		if _, err := ParseScale(ok); err != nil {
			t.Errorf("ParseScale(%q): %v", ok, err)
		}
	}
	if _, err := ParseScale("huge"); err == nil {
		t.Error("ParseScale(huge) succeeded")
	}
}

func TestScaleCounts(t *testing.T) {
	tests := []struct {
		scale Scale
		want  Counts
	}{
		{ScaleSmall, Counts{1000, 500, 5000}},
		{ScaleMedium, Counts{10000, 5000, 50000}},
		{ScaleLarge, Counts{50000, 25000, 250000}},
	}
	for _, tc := range tests {
		if got := tc.scale.Counts(); got != tc.want {
			t.Errorf("%s counts = %+v, want %+v", tc.scale, got, tc.want)
		}
	}
}

func TestTableNames(t *testing.T) {
	ds, err := testGenerator(Config{Scale: ScaleSmall}).All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	tables := ds.Tables()
	for _, name := range TableNames() {
		batch, ok := tables[name]
		if !ok || batch == nil {
			t.Errorf("table %s missing from dataset", name)
			continue
		}
		if batch.Sheet != name {
			t.Errorf("table %s batch named %q", name, batch.Sheet)
		}
	}
}
