package survey

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

// EntryPoint is a control on the listing that opens one pending survey.
type EntryPoint struct {
	Element dom.Element
	Text    string
	Tag     string
	Class   string
	Onclick string
	Enabled bool
	Visible bool
}

// Navigator moves between the site's menu, the survey listing and surveys.
type Navigator struct {
	logger   *zap.Logger
	site     config.SiteConfig
	timing   config.TimingConfig
	resolver *Resolver
	pacer    *Pacer
}

// NewNavigator creates a Navigator.
func NewNavigator(cfg *config.Config, resolver *Resolver, pacer *Pacer, logger *zap.Logger) *Navigator {
	return &Navigator{
		logger:   logger.Named("navigator"),
		site:     cfg.Site,
		timing:   cfg.Timing,
		resolver: resolver,
		pacer:    pacer,
	}
}

// OpenListing reaches the survey listing from wherever the session landed
// after login: through the menu link when there is one, directly by URL
// otherwise, then through the fill link if the page offers it.
func (n *Navigator) OpenListing(ctx context.Context, page dom.Page) error {
	if err := Sleep(ctx, n.timing.Scaled(n.timing.PageLoadWait)); err != nil {
		return err
	}
	loc, err := n.location(ctx, page)
	if err != nil {
		return err
	}
	n.logger.Info("Looking for the survey listing", zap.String("url", loc.URL), zap.String("title", loc.Title))

	menu, err := n.resolver.First(ctx, page, TargetMenuLink)
	if err != nil {
		return err
	}
	if menu != nil {
		if err := n.ClickAndSettle(ctx, menu); err != nil {
			if fatal(ctx, err) {
				return err
			}
			n.logger.Warn("Menu link click failed", zap.Error(err))
			menu = nil
		}
	}
	if menu == nil {
		n.logger.Info("Opening the listing directly", zap.String("url", n.site.ListingURL))
		if err := page.Navigate(ctx, n.site.ListingURL); err != nil {
			if fatal(ctx, err) {
				return err
			}
			n.logger.Warn("Direct navigation to the listing failed", zap.Error(err))
		}
		if err := Sleep(ctx, n.timing.Scaled(n.timing.PageLoadWait)); err != nil {
			return err
		}
	}

	fill, err := n.resolver.First(ctx, page, TargetFillLink)
	if err != nil {
		return err
	}
	if fill == nil {
		n.logger.Info("Fill link not found, may already be on the listing")
		return nil
	}
	if err := n.ClickAndSettle(ctx, fill); err != nil {
		if fatal(ctx, err) {
			return err
		}
		n.logger.Warn("Fill link click failed", zap.Error(err))
	}
	return nil
}

// ListEntryPoints returns the pending surveys on the listing, in page order.
// It returns to the listing first when the page is somewhere else. Handles
// are only good until the next navigation.
func (n *Navigator) ListEntryPoints(ctx context.Context, page dom.Page) ([]EntryPoint, error) {
	loc, err := n.location(ctx, page)
	if err != nil {
		return nil, err
	}
	// An unknown location is treated as off the listing.
	if loc.URL == "" || (n.site.ListingRoute != "" && !strings.Contains(loc.URL, n.site.ListingRoute)) {
		n.logger.Info("Not on the listing, navigating back", zap.String("url", loc.URL))
		if err := page.Navigate(ctx, n.site.ListingURL); err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			n.logger.Warn("Navigation to the listing failed", zap.Error(err))
		}
		if err := n.OpenListing(ctx, page); err != nil {
			return nil, err
		}
	}

	if err := Sleep(ctx, n.timing.Scaled(n.timing.ListingWait)); err != nil {
		return nil, err
	}
	found, err := n.resolver.Resolve(ctx, page, TargetEntryPoints)
	if err != nil {
		return nil, err
	}
	entries := make([]EntryPoint, 0, len(found))
	for i, el := range found {
		entry := EntryPoint{Element: el}
		info, err := el.Describe(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			n.logger.Debug("Could not describe entry point", zap.Int("index", i), zap.Error(err))
		} else {
			entry.Text = info.Label()
			entry.Tag = info.Tag
			entry.Class = info.Class
			entry.Onclick = info.Onclick
			entry.Enabled = info.Enabled
			entry.Visible = info.Visible
		}
		n.logger.Debug("Entry point",
			zap.Int("index", i),
			zap.String("text", entry.Text),
			zap.String("tag", entry.Tag),
			zap.String("class", entry.Class),
			zap.String("onclick", entry.Onclick),
		)
		entries = append(entries, entry)
	}
	n.logger.Info("Listed pending surveys", zap.Int("count", len(entries)))
	return entries, nil
}

// location reads the current URL and title. Only a fatal failure is
// returned; otherwise the location comes back empty.
func (n *Navigator) location(ctx context.Context, page dom.Page) (dom.Location, error) {
	loc, err := page.Location(ctx)
	if err != nil {
		if fatal(ctx, err) {
			return dom.Location{}, err
		}
		n.logger.Warn("Could not read the current location", zap.Error(err))
		return dom.Location{}, nil
	}
	return loc, nil
}

// ClickAndSettle scrolls el into view, clicks it and waits for the page to load.
func (n *Navigator) ClickAndSettle(ctx context.Context, el dom.Element) error {
	if err := el.ScrollIntoView(ctx); err != nil {
		if fatal(ctx, err) {
			return err
		}
		n.logger.Debug("Scroll into view failed", zap.Error(err))
	}
	if err := Sleep(ctx, n.timing.Scaled(n.timing.ViewSettle)); err != nil {
		return err
	}
	if err := n.pacer.Control(ctx); err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return err
	}
	return Sleep(ctx, n.timing.Scaled(n.timing.PageLoadWait))
}
