package quote

// Product categories.
const (
	ProductCards   = "tarjetas"
	ProductFlyers  = "flyers"
	ProductBanners = "pendones"
)

// Design service tiers.
const (
	TierNone    = "ninguno"
	TierBasic   = "basico"
	TierMedium  = "medio"
	TierPremium = "premium"
)

// Finishes.
const (
	FinishNone         = "sin_laminar"
	FinishPolylaminate = "polilaminado"
)

// breakpoint is the tax-inclusive price of a fixed quantity.
type breakpoint struct {
	qty   int
	price int64
}

// variant is one priced combination of options for a product. Breakpoints
// are ascending; quantities above the last one scale linearly at its unit
// price.
type variant struct {
	sides  int
	finish string
	size   string
	points []breakpoint
}

// product groups the variants of a category and says which options select
// a variant.
type product struct {
	name     string
	bySides  bool
	byFinish bool
	bySize   bool
	// defaults used when the request leaves an option empty
	defaultSides  int
	defaultFinish string
	defaultSize   string
	variants      []variant
}

var catalog = map[string]product{
	ProductCards: {
		name:          "Tarjetas de presentación",
		bySides:       true,
		byFinish:      true,
		defaultSides:  1,
		defaultFinish: FinishNone,
		variants: []variant{
			{sides: 1, finish: FinishNone, points: []breakpoint{{100, 9000}, {500, 18000}, {1000, 26000}}},
			{sides: 2, finish: FinishNone, points: []breakpoint{{100, 12000}, {500, 24000}, {1000, 35700}}},
			{sides: 1, finish: FinishPolylaminate, points: []breakpoint{{100, 14000}, {500, 27000}, {1000, 38000}}},
			{sides: 2, finish: FinishPolylaminate, points: []breakpoint{{100, 16000}, {500, 32000}, {1000, 47600}}},
		},
	},
	ProductFlyers: {
		name:         "Flyers",
		bySides:      true,
		bySize:       true,
		defaultSides: 1,
		defaultSize:  "media_carta",
		variants: []variant{
			{sides: 1, size: "media_carta", points: []breakpoint{{500, 35000}, {1000, 49000}, {2000, 86000}}},
			{sides: 2, size: "media_carta", points: []breakpoint{{500, 45000}, {1000, 65000}, {2000, 115000}}},
			{sides: 1, size: "carta", points: []breakpoint{{500, 55000}, {1000, 79000}, {2000, 140000}}},
			{sides: 2, size: "carta", points: []breakpoint{{500, 70000}, {1000, 99000}, {2000, 180000}}},
		},
	},
	ProductBanners: {
		name:        "Pendones roller",
		bySize:      true,
		defaultSize: "80x200",
		variants: []variant{
			{size: "80x200", points: []breakpoint{{1, 45000}}},
			{size: "90x200", points: []breakpoint{{1, 52000}}},
			{size: "100x200", points: []breakpoint{{1, 59000}}},
		},
	},
}

// designFees are flat, tax-inclusive design surcharges per tier.
var designFees = map[string]int64{
	TierNone:    0,
	TierBasic:   15000,
	TierMedium:  30000,
	TierPremium: 50000,
}

// BasicWaiverThreshold is the base price at or above which the basic design
// tier is free.
const BasicWaiverThreshold int64 = 60000

var productAliases = map[string]string{
	"tarjeta":                  ProductCards,
	"tarjetas":                 ProductCards,
	"tarjetas_de_presentacion": ProductCards,
	"tarjeta_de_presentacion":  ProductCards,
	"business_cards":           ProductCards,
	"flyer":                    ProductFlyers,
	"flyers":                   ProductFlyers,
	"volante":                  ProductFlyers,
	"volantes":                 ProductFlyers,
	"pendon":                   ProductBanners,
	"pendones":                 ProductBanners,
	"roller":                   ProductBanners,
	"roll_up":                  ProductBanners,
	"pendon_roller":            ProductBanners,
}

var tierAliases = map[string]string{
	"":           TierNone,
	"no":         TierNone,
	"ninguno":    TierNone,
	"none":       TierNone,
	"sin":        TierNone,
	"basico":     TierBasic,
	"basic":      TierBasic,
	"medio":      TierMedium,
	"intermedio": TierMedium,
	"medium":     TierMedium,
	"premium":    TierPremium,
	"pro":        TierPremium,
}

var finishAliases = map[string]string{
	"":                  "",
	"sin_laminar":       FinishNone,
	"sin_laminado":      FinishNone,
	"sin_terminacion":   FinishNone,
	"sin_terminaciones": FinishNone,
	"sin_plastificar":   FinishNone,
	"normal":            FinishNone,
	"ninguno":           FinishNone,
	"ninguna":           FinishNone,
	"sin":               FinishNone,
	"polilaminado":      FinishPolylaminate,
	"polilaminada":      FinishPolylaminate,
	"laminado":          FinishPolylaminate,
	"plastificado":      FinishPolylaminate,
}

var sizeAliases = map[string]string{
	"media_carta": "media_carta",
	"1/2_carta":   "media_carta",
	"a5":          "media_carta",
	"carta":       "carta",
	"letter":      "carta",
	"a4":          "carta",
	"80x200":      "80x200",
	"90x200":      "90x200",
	"100x200":     "100x200",
}
