package repository

import (
	"github.com/elektrobit/berrymill/internal/models"
	"github.com/sirupsen/logrus"
)

// Description is the repository part of a loaded image description
type Description interface {
	// DeleteRepositorySections removes every repository section
	DeleteRepositorySections()
	// AddRepository appends a repository section built from rec
	AddRepository(rec models.Record) error
}

// Validator is implemented by descriptions that can reject a record
// without modifying anything
type Validator interface {
	ValidateRepository(rec models.Record) error
}

// Rewrite replaces all repository sections of desc with repos. The merged
// set is authoritative: nothing from the previous sections survives.
//
// When desc is a Validator every record is checked before the first
// deletion, so a rejected record leaves desc untouched.
func Rewrite(desc Description, repos *models.RepoSet) error {
	records := make([]models.Record, 0, repos.Len())
	for _, name := range repos.Names() {
		attrs, _ := repos.Get(name)
		records = append(records, Translate(name, attrs))
	}

	if v, ok := desc.(Validator); ok {
		for _, rec := range records {
			if err := v.ValidateRepository(rec); err != nil {
				return &models.MillError{Type: models.ErrRewrite, Subject: rec.Alias, Err: err}
			}
		}
	}

	desc.DeleteRepositorySections()

	for _, rec := range records {
		if err := desc.AddRepository(rec); err != nil {
			return &models.MillError{Type: models.ErrRewrite, Subject: rec.Alias, Err: err}
		}
		logrus.Debugf("Injected repository %s (%s %s)", rec.Alias, rec.Type, rec.SourceURL)
	}

	logrus.Infof("Image description uses %d repositories", len(records))
	return nil
}
