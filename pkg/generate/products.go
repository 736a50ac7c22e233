package generate

import (
	"fmt"
	"math/rand"
	"strings"

	"log/slog"

	"github.com/lakeseed/lakeseed/pkg/frame"
)

// productCategory describes one catalog segment: its retail price
// band and the margin used to derive cost price.
type productCategory struct {
	Name       string
	PriceLow   float64
	PriceHigh  float64
	Margin     float64
	Templates  []string
	Items      []string
	Subsegment []string
}

var productCategories = []productCategory{
	{
		Name: "Electronics", PriceLow: 10, PriceHigh: 2000, Margin: 0.3,
		Templates:  []string{"Wireless %s", "Bluetooth %s", "Smart %s", "Portable %s", "Gaming %s", "Professional %s", "%s Pro", "%s Max"},
		Items:      []string{"Headphones", "Speaker", "Mouse", "Keyboard", "Monitor", "Laptop", "Tablet", "Phone"},
		Subsegment: []string{"Audio", "Computing", "Gaming", "Mobile", "Wearables"},
	},
	{
		Name: "Clothing", PriceLow: 15, PriceHigh: 500, Margin: 0.4,
		Templates:  []string{"Classic %s", "Premium %s", "Casual %s", "Designer %s", "Comfort %s", "Athletic %s", "%s Collection", "Vintage %s"},
		Items:      []string{"T-Shirt", "Jeans", "Jacket", "Dress", "Shoes", "Hat", "Scarf", "Gloves"},
		Subsegment: []string{"Tops", "Bottoms", "Outerwear", "Footwear", "Accessories"},
	},
	{
		Name: "Books", PriceLow: 5, PriceHigh: 100, Margin: 0.5,
		Templates:  []string{"The Art of %s", "Mastering %s", "Guide to %s", "Essentials of %s", "%s Handbook", "Advanced %s", "%s for Beginners", "Complete %s"},
		Items:      []string{"Programming", "Cooking", "Photography", "Gardening", "Business", "History", "Science", "Art"},
		Subsegment: []string{"Fiction", "Non-Fiction", "Educational", "Reference", "Biography"},
	},
	{
		Name: "Home & Garden", PriceLow: 20, PriceHigh: 800, Margin: 0.35,
		Templates:  []string{"Modern %s", "Rustic %s", "Garden %s", "Indoor %s", "Decorative %s", "Functional %s", "Luxury %s", "Compact %s"},
		Items:      []string{"Lamp", "Chair", "Table", "Plant", "Decor", "Storage", "Lighting", "Furniture"},
		Subsegment: []string{"Furniture", "Decor", "Kitchen", "Garden", "Lighting"},
	},
	{
		Name: "Sports", PriceLow: 25, PriceHigh: 600, Margin: 0.4,
		Templates:  []string{"Professional %s", "Training %s", "Performance %s", "Extreme %s", "Athletic %s", "Competition %s", "%s Gear", "Elite %s"},
		Items:      []string{"Shoes", "Ball", "Racket", "Bike", "Gloves", "Helmet", "Jersey", "Equipment"},
		Subsegment: []string{"Team Sports", "Individual Sports", "Fitness", "Outdoor", "Water Sports"},
	},
	{
		Name: "Beauty", PriceLow: 8, PriceHigh: 200, Margin: 0.45,
		Templates:  []string{"Luxury %s", "Natural %s", "Professional %s", "Organic %s", "Anti-Aging %s", "Hydrating %s", "Repairing %s", "Nourishing %s"},
		Items:      []string{"Cream", "Serum", "Mask", "Oil", "Lotion", "Soap", "Shampoo", "Conditioner"},
		Subsegment: []string{"Skincare", "Haircare", "Makeup", "Fragrance", "Nails"},
	},
}

var brandStems = []string{
	"Atlas", "Vertex", "Norton", "Halcyon", "Meridian", "Beacon",
	"Cascade", "Summit", "Harbor", "Pinnacle", "Aurora", "Solstice",
}

var brandSuffixes = []string{"Ltd", "Inc", "Group", "Labs", "Works", "& Co"}

var loremWords = []string{
	"quality", "durable", "design", "everyday", "value", "crafted",
	"modern", "reliable", "essential", "versatile", "premium", "finish",
	"comfort", "performance", "classic", "style",
}

type productRef struct {
	ID        string
	SalePrice float64
}

func productSchema() (frame.Schema, error) {
	return frame.NewSchema(
		frame.Field{Name: "product_id", Kind: frame.KindString},
		frame.Field{Name: "product_name", Kind: frame.KindString},
		frame.Field{Name: "category", Kind: frame.KindString},
		frame.Field{Name: "subcategory", Kind: frame.KindString},
		frame.Field{Name: "brand", Kind: frame.KindString},
		frame.Field{Name: "description", Kind: frame.KindString},
		frame.Field{Name: "base_price", Kind: frame.KindFloat64},
		frame.Field{Name: "sale_price", Kind: frame.KindFloat64},
		frame.Field{Name: "cost_price", Kind: frame.KindFloat64},
		frame.Field{Name: "currency", Kind: frame.KindString},
		frame.Field{Name: "stock_quantity", Kind: frame.KindInt64},
		frame.Field{Name: "min_stock_level", Kind: frame.KindInt64},
		frame.Field{Name: "supplier_id", Kind: frame.KindString},
		frame.Field{Name: "is_active", Kind: frame.KindBool},
		frame.Field{Name: "created_date", Kind: frame.KindTimestamp},
		frame.Field{Name: "last_updated", Kind: frame.KindTimestamp},
	)
}

// buildProducts generates the catalog. Prices are category-banded and
// sale prices swing -30%..+10% around base, so some products discount.
func (g *Generator) buildProducts(n int) (*frame.Batch, []productRef, error) {
	rng := g.rng(streamProducts)
	today := g.today()
	createdFrom := today.AddDate(-1, 0, 0)
	updatedFrom := today.AddDate(0, -6, 0)

	schema, err := productSchema()
	if err != nil {
		return nil, nil, err
	}
	builder := frame.NewBuilder("products", schema)
	refs := make([]productRef, 0, n)

	for i := 0; i < n; i++ {
		cat := productCategories[rng.Intn(len(productCategories))]
		basePrice := uniform(rng, cat.PriceLow, cat.PriceHigh)
		salePrice := round2(basePrice * (1 + uniform(rng, -0.3, 0.1)))

		name := fmt.Sprintf(pick(rng, cat.Templates), pick(rng, cat.Items))
		id := fmt.Sprintf("PROD_%06d", i+1)

		err := builder.AppendRow(
			id,
			name,
			cat.Name,
			pick(rng, cat.Subsegment),
			pick(rng, brandStems)+" "+pick(rng, brandSuffixes),
			sentence(rng),
			round2(basePrice),
			salePrice,
			round2(basePrice*(1-cat.Margin)),
			"USD",
			int64(rng.Intn(1001)),
			int64(10+rng.Intn(91)),
			fmt.Sprintf("SUP_%03d", 1+rng.Intn(100)),
			rng.Float64() > 0.05,
			dateBetween(rng, createdFrom, today),
			dateBetween(rng, updatedFrom, today),
		)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, productRef{ID: id, SalePrice: salePrice})
	}

	batch := builder.Batch()
	g.logger.Debug("products generated", slog.Int("rows", batch.NumRows()))
	return batch, refs, nil
}

// sentence builds a short capitalized description.
func sentence(rng *rand.Rand) string {
	n := 6 + rng.Intn(7)
	words := make([]string, n)
	for i := range words {
		words[i] = pick(rng, loremWords)
	}
	s := strings.Join(words, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}
