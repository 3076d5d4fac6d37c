package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/db"
	"github.com/xenking/authorstore/internal/domain/product"
	"github.com/xenking/authorstore/internal/storage/postgres"
)

type productJSON struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency"`
	Active               *bool           `json:"active"`
	FulfillmentProductID string          `json:"fulfillment_product_id"`
	FulfillmentVariantID string          `json:"fulfillment_variant_id"`
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the product catalog",
		Long:  "Upsert the product catalog from a JSON file, or from the built-in catalog when --file is not set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := db.SeedProducts
			if file != "" {
				var err error
				if data, err = os.ReadFile(file); err != nil {
					return errors.Wrap(err, "read products file")
				}
			}
			products, err := decodeProducts(data)
			if err != nil {
				return err
			}

			return opts.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				if err := postgres.RunMigrations(cmd.Context(), pool); err != nil {
					return err
				}
				repo := postgres.NewProductRepository(pool)
				for _, p := range products {
					if err := repo.Upsert(cmd.Context(), p); err != nil {
						return err
					}
					opts.lg.Info("Product upserted",
						zap.String("id", p.ID),
						zap.String("price", p.Price.StringFixed(2)),
						zap.Bool("print_on_demand", p.VendorFulfilled()),
					)
				}
				opts.lg.Info("Seed completed", zap.Int("products", len(products)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a products JSON file")
	return cmd
}

// decodeProducts parses a catalog file. Products are active unless the file
// says otherwise.
func decodeProducts(data []byte) ([]product.Product, error) {
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	products := make([]product.Product, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, r := range raw {
		if r.ID == "" || r.Name == "" {
			return nil, errors.Errorf("product #%d: id and name are required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, errors.Errorf("product %q listed twice", r.ID)
		}
		seen[r.ID] = struct{}{}
		if !r.Price.IsPositive() {
			return nil, errors.Errorf("product %q: price must be positive", r.ID)
		}
		if (r.FulfillmentProductID == "") != (r.FulfillmentVariantID == "") {
			return nil, errors.Errorf("product %q: fulfillment product and variant must be set together", r.ID)
		}

		p := product.Product{
			ID:                   r.ID,
			Name:                 r.Name,
			Description:          r.Description,
			Price:                r.Price,
			Currency:             strings.ToLower(r.Currency),
			Active:               true,
			FulfillmentProductID: r.FulfillmentProductID,
			FulfillmentVariantID: r.FulfillmentVariantID,
		}
		if p.Currency == "" {
			p.Currency = "usd"
		}
		if r.Active != nil {
			p.Active = *r.Active
		}
		products = append(products, p)
	}
	return products, nil
}
