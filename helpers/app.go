package helpers

import "github.com/pocketbase/pocketbase"

func CreateApp(dev bool) *pocketbase.PocketBase {
	app := pocketbase.NewWithConfig(pocketbase.Config{
		HideStartBanner: false,
		DefaultDev:      dev,
	})

	return app
}
