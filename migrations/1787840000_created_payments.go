package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("payments")

		collection.Fields.Add(
			&core.TextField{
				Name:        "payment_id",
				Required:    true,
				Presentable: true,
			},
			&core.TextField{
				Name: "order_id",
			},
			&core.NumberField{
				Name:     "amount",
				Required: true,
			},
			&core.TextField{
				Name: "ref1",
			},
			&core.TextField{
				Name: "ref2",
			},
			&core.TextField{
				Name: "payload",
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "completed", "cancelled", "expired"},
			},
			&core.TextField{
				Name: "method",
			},
			&core.TextField{
				Name: "slip_file",
			},
			&core.DateField{
				Name: "verified_at",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
