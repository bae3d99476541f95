package scraper

import (
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/handlers"
	"mediaharvest/pkg/models"
)

// capabilities reports which collaborators are usable for a seed.
type capabilities struct {
	api     bool
	browser bool
	fetcher bool
}

// chooseStrategy picks the extraction path for a handler. A handler
// that requires its API gets it or nothing; an API preference yields
// to the browser when no API collaborator exists; the fallback fetcher
// is the path of last resort.
func chooseStrategy(h handlers.Handler, caps capabilities) (models.Strategy, error) {
	switch {
	case h.RequiresAPI():
		if !caps.api {
			return models.StrategyNone, errs.ErrNoStrategyAvailable
		}
		return models.StrategyAPI, nil
	case h.PrefersAPI() && caps.api:
		return models.StrategyAPI, nil
	case caps.browser:
		return models.StrategyDirectBrowser, nil
	case caps.fetcher:
		return models.StrategyFallbackFetcher, nil
	default:
		return models.StrategyNone, errs.ErrNoStrategyAvailable
	}
}
