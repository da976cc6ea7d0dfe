package tally_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL or SQLite in production)
		store := memory.New()

		tl := tally.New(store,
			tally.WithLogger(slog.Default()),
			tally.WithCurrency("INR"),
		)

		ctx := context.Background()
		if err := tl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer tl.Stop()

		ctx = tally.WithOwner(ctx, "user-1")

		wallet := &account.Account{
			Kind:           account.KindCash,
			Name:           "Wallet",
			OpeningBalance: types.FromInt(500, "INR"),
		}
		if err := tl.CreateAccount(ctx, wallet); err != nil {
			t.Fatal(err)
		}

		food := &catalog.Category{Name: "Food"}
		if err := tl.CreateCategory(ctx, food); err != nil {
			t.Fatal(err)
		}
		tea := &catalog.Item{CategoryID: food.ID, Name: "Tea"}
		if err := tl.CreateItem(ctx, tea); err != nil {
			t.Fatal(err)
		}

		m, err := tl.CreateMovement(ctx, tally.CreateInput{
			Kind:       movement.KindExpense,
			CategoryID: food.ID,
			ItemID:     tea.ID,
			Price:      decimal.NewFromInt(20),
			Quantity:   decimal.NewFromInt(2),
			AccountID:  wallet.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Expense recorded: %s %s\n", m.Code, m.Total.String())

		summary, err := tl.Summary(ctx, movement.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if !summary.NetBalance.Equal(types.FromInt(460, "INR")) {
			t.Fatalf("net balance = %s, want 460", summary.NetBalance)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.FromInt(4900, "inr")      // ₹4,900.00
		_ = types.MustParse("12.50", "USD") // $12.50
		_ = types.Zero("INR")               // ₹0.00

		// Arithmetic
		m1 := types.FromInt(100, "INR")
		m2 := types.FromInt(200, "INR")
		_ = m1.Add(m2)                        // ₹300.00
		_ = m1.Mul(decimal.NewFromFloat(1.5)) // ₹150.00
		_ = m1.Negate()                       // -₹100.00

		// Comparison
		if !m1.LessThan(m2) {
			t.Fatal("expected m1 < m2")
		}

		// Formatting
		_ = m1.String()      // "₹100.00"
		_ = m1.FormatMajor() // "100.00"
	})
}
