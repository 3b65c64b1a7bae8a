package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return err
		}

		collection.AddIndex("idx_payments_payment_id", true, "payment_id", "")
		collection.AddIndex("idx_payments_status_created", false, "status, created", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return err
		}

		collection.RemoveIndex("idx_payments_payment_id")
		collection.RemoveIndex("idx_payments_status_created")

		return app.Save(collection)
	})
}
