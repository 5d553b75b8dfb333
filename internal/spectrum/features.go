package spectrum

import (
	"fmt"
	"log/slog"

	"github.com/roman-kulish/spacelabel/internal/catalogue"
	"github.com/roman-kulish/spacelabel/internal/epoch"
)

const (
	catalogueSuffix = ".json"
	summarySuffix   = ".txt"
)

// Presenter is the view-side collaborator of a dataset. The dataset only
// asks it to re-query after its features change underneath it.
type Presenter interface {
	Refresh() error
}

// RegisterPresenter links p to the dataset, replacing any previous one.
func (d *DataSet) RegisterPresenter(p Presenter) {
	d.presenter = p
}

// CataloguePath is where the feature catalogue of the dataset lives.
func (d *DataSet) CataloguePath() string {
	return d.base + catalogueSuffix
}

// SummaryPath is where the plain text feature summary is written.
func (d *DataSet) SummaryPath() string {
	return d.base + summarySuffix
}

// AddFeature appends a polygon to the catalogue. Its ID is the number of
// features before it.
func (d *DataSet) AddFeature(name string, vertexes []catalogue.Vertex) (*catalogue.Feature, error) {
	f, err := d.catalogue.Add(name, vertexes)
	if err != nil {
		return nil, fmt.Errorf("adding feature %q: %w", name, err)
	}
	d.logger.Info("feature added", "id", f.ID(), "name", f.Name())
	return f, nil
}

// Features returns the catalogue in insertion order.
func (d *DataSet) Features() []*catalogue.Feature {
	return d.catalogue.Features()
}

// FeaturesInRange returns the features whose time extent overlaps
// [start, end].
func (d *DataSet) FeaturesInRange(start, end epoch.JulianDate) []*catalogue.Feature {
	return d.catalogue.InRange(start, end)
}

// ReloadCatalogue replaces the features with the content of the catalogue
// file and asks the presenter, if any, to refresh. A missing file empties
// the catalogue.
func (d *DataSet) ReloadCatalogue() error {
	features, meta, err := catalogue.Load(d.CataloguePath())
	if err != nil {
		return fmt.Errorf("reloading catalogue: %w", err)
	}
	if meta.Observer != "" && d.observer != "" && meta.Observer != d.observer {
		d.logger.Warn("catalogue observer differs from dataset",
			slog.String("catalogue", meta.Observer),
			slog.String("dataset", d.observer),
		)
	}

	d.catalogue.Replace(features)
	d.logger.Debug("catalogue loaded", "path", d.CataloguePath(), "features", len(features))

	if d.presenter != nil {
		if err = d.presenter.Refresh(); err != nil {
			return fmt.Errorf("refreshing presenter: %w", err)
		}
	}
	return nil
}

// SaveCatalogue overwrites the catalogue file and its text summary.
func (d *DataSet) SaveCatalogue() error {
	features := d.catalogue.Features()
	meta := catalogue.Meta{
		Observer:      d.observer,
		FrequencyUnit: d.units[UnitFrequency],
	}

	if err := catalogue.Save(d.CataloguePath(), features, meta); err != nil {
		return fmt.Errorf("saving catalogue: %w", err)
	}
	if err := catalogue.SaveSummary(d.SummaryPath(), features); err != nil {
		return fmt.Errorf("saving catalogue summary: %w", err)
	}

	d.logger.Info("catalogue saved", "path", d.CataloguePath(), "features", len(features))
	return nil
}
