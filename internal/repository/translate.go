// Package repository turns merged repository definitions into the
// repository sections of an image description.
package repository

import (
	"strings"

	"github.com/elektrobit/berrymill/internal/models"
	"github.com/sirupsen/logrus"
)

// Translate normalizes the loose attributes of the repository called name.
// Injected repositories never enable GPG checking.
func Translate(name string, attrs models.RepoAttributes) models.Record {
	components, ok := attrs.Get(models.AttrComponents)
	if !ok {
		components = models.AllComponents
	}
	if components == models.AllComponents {
		components = ""
	}
	components = strings.ReplaceAll(components, ",", " ")

	key := attrs[models.AttrKey]
	logrus.Infof("Repository %s signing key: %q", name, key)

	return models.Record{
		Alias:        name,
		SourceURL:    attrs[models.AttrURL],
		Type:         attrs[models.AttrType],
		SigningKeys:  []string{key},
		Components:   components,
		Distribution: attrs[models.AttrName],
		GPGCheck:     false,
	}
}
