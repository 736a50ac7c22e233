package generate

import (
	"fmt"
	"strings"

	"log/slog"

	"github.com/lakeseed/lakeseed/pkg/frame"
)

// countryCurrencies pairs each market with its settlement currency.
// Kept as a slice so draws are deterministic.
var countryCurrencies = []struct {
	Country  string
	Currency string
}{
	{"US", "USD"}, {"UK", "GBP"}, {"DE", "EUR"}, {"FR", "EUR"},
	{"IT", "EUR"}, {"ES", "EUR"}, {"NL", "EUR"}, {"CA", "CAD"},
	{"AU", "AUD"}, {"JP", "JPY"}, {"CN", "CNY"}, {"IN", "INR"},
}

var segments = []string{"Bronze", "Silver", "Gold", "Platinum"}

var firstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael",
	"Linda", "David", "Elizabeth", "William", "Barbara", "Richard", "Susan",
	"Joseph", "Jessica", "Thomas", "Karen", "Charles", "Sarah", "Daniel",
	"Lisa", "Wei", "Yuki", "Priya", "Lars", "Sofia", "Marco",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Wilson", "Anderson", "Taylor",
	"Thomas", "Moore", "Jackson", "Martin", "Lee", "Thompson", "White",
	"Tanaka", "Singh", "Chen", "Mueller", "Rossi", "Dubois",
}

var cities = []string{
	"Springfield", "Riverside", "Fairview", "Georgetown", "Clinton",
	"Salem", "Madison", "Ashland", "Oxford", "Burlington", "Milton",
	"Clayton", "Dayton", "Lexington", "Milford", "Winchester",
}

var streetNames = []string{
	"Oak", "Maple", "Cedar", "Pine", "Elm", "Washington", "Lake",
	"Hill", "Park", "Main", "Church", "Mill", "River", "Spring",
}

var streetSuffixes = []string{"Street", "Avenue", "Road", "Lane", "Drive", "Court"}

var emailDomains = []string{"example.com", "example.org", "example.net", "mail.example"}

type customerRef struct {
	ID       string
	Currency string
	Address  string
}

func customerSchema() (frame.Schema, error) {
	return frame.NewSchema(
		frame.Field{Name: "customer_id", Kind: frame.KindString},
		frame.Field{Name: "customer_name", Kind: frame.KindString},
		frame.Field{Name: "email", Kind: frame.KindString},
		frame.Field{Name: "phone", Kind: frame.KindString},
		frame.Field{Name: "address", Kind: frame.KindString},
		frame.Field{Name: "city", Kind: frame.KindString},
		frame.Field{Name: "country", Kind: frame.KindString},
		frame.Field{Name: "currency", Kind: frame.KindString},
		frame.Field{Name: "registration_date", Kind: frame.KindTimestamp},
		frame.Field{Name: "segment", Kind: frame.KindString},
		frame.Field{Name: "total_orders", Kind: frame.KindInt64},
		frame.Field{Name: "total_spent", Kind: frame.KindFloat64},
		frame.Field{Name: "last_order_date", Kind: frame.KindTimestamp, Nullable: true},
	)
}

// buildCustomers generates n customers. Roughly 10% have never
// ordered, leaving last_order_date null.
func (g *Generator) buildCustomers(n int) (*frame.Batch, []customerRef, error) {
	rng := g.rng(streamCustomers)
	today := g.today()
	regFrom := today.AddDate(-2, 0, 0)
	orderFrom := today.AddDate(-1, 0, 0)

	schema, err := customerSchema()
	if err != nil {
		return nil, nil, err
	}
	builder := frame.NewBuilder("customers", schema)
	refs := make([]customerRef, 0, n)

	for i := 0; i < n; i++ {
		market := countryCurrencies[rng.Intn(len(countryCurrencies))]
		first := pick(rng, firstNames)
		last := pick(rng, lastNames)
		city := pick(rng, cities)
		address := fmt.Sprintf("%d %s %s, %s",
			1+rng.Intn(9999), pick(rng, streetNames), pick(rng, streetSuffixes), city)

		var lastOrder interface{}
		if rng.Float64() > 0.1 {
			lastOrder = dateBetween(rng, orderFrom, today)
		}

		id := fmt.Sprintf("CUST_%06d", i+1)
		err := builder.AppendRow(
			id,
			first+" "+last,
			fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), 1+rng.Intn(999), pick(rng, emailDomains)),
			fmt.Sprintf("+1-555-%03d-%04d", rng.Intn(1000), rng.Intn(10000)),
			address,
			city,
			market.Country,
			market.Currency,
			dateBetween(rng, regFrom, today),
			pick(rng, segments),
			int64(rng.Intn(51)),
			round2(uniform(rng, 0, 10000)),
			lastOrder,
		)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, customerRef{ID: id, Currency: market.Currency, Address: address})
	}

	batch := builder.Batch()
	g.logger.Debug("customers generated", slog.Int("rows", batch.NumRows()))
	return batch, refs, nil
}
