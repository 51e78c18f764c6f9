package repository

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/elektrobit/berrymill/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDescription records repository sections by alias
type fakeDescription struct {
	sections []models.Record
	deletes  int
	reject   string
}

func (d *fakeDescription) DeleteRepositorySections() {
	d.deletes++
	d.sections = nil
}

func (d *fakeDescription) AddRepository(rec models.Record) error {
	if rec.Alias == d.reject {
		return fmt.Errorf("repository %s has no source", rec.Alias)
	}
	d.sections = append(d.sections, rec)
	return nil
}

func (d *fakeDescription) aliases() []string {
	var out []string
	for _, s := range d.sections {
		out = append(out, s.Alias)
	}
	sort.Strings(out)
	return out
}

type validatingDescription struct {
	fakeDescription
}

func (d *validatingDescription) ValidateRepository(rec models.Record) error {
	if rec.SourceURL == "" {
		return errors.New("missing source")
	}
	return nil
}

func TestTranslateComponents(t *testing.T) {
	tests := []struct {
		name       string
		attrs      models.RepoAttributes
		components string
	}{
		{"absent", models.RepoAttributes{}, ""},
		{"wildcard", models.RepoAttributes{"components": "/"}, ""},
		{"empty", models.RepoAttributes{"components": ""}, ""},
		{"single", models.RepoAttributes{"components": "main"}, "main"},
		{"list", models.RepoAttributes{"components": "a,b,c"}, "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.components, Translate("r", tt.attrs).Components)
		})
	}
}

func TestTranslateScenario(t *testing.T) {
	rec := Translate("myrepo", models.RepoAttributes{"url": "http://x", "type": "rpm-md", "key": "K"})

	assert.Equal(t, models.Record{
		Alias:        "myrepo",
		SourceURL:    "http://x",
		Type:         "rpm-md",
		SigningKeys:  []string{"K"},
		Components:   "",
		Distribution: "",
		GPGCheck:     false,
	}, rec)
}

func TestTranslateKeepsMissingKeyAndDistribution(t *testing.T) {
	rec := Translate("deb", models.RepoAttributes{"url": "http://deb", "type": "apt-deb", "name": "bookworm"})

	assert.Equal(t, []string{""}, rec.SigningKeys, "a missing key is passed on, not filtered")
	assert.Equal(t, "bookworm", rec.Distribution)
	assert.False(t, rec.GPGCheck)
}

func newSet(names ...string) *models.RepoSet {
	set := models.NewRepoSet()
	for _, n := range names {
		set.Add(n, models.RepoAttributes{"url": "http://" + n, "type": "apt-deb"})
	}
	return set
}

func TestRewriteReplacesAllSections(t *testing.T) {
	desc := &fakeDescription{sections: []models.Record{{Alias: "stale"}, {Alias: "a"}}}

	require.NoError(t, Rewrite(desc, newSet("a", "b", "c")))

	assert.Equal(t, []string{"a", "b", "c"}, desc.aliases())
	assert.Equal(t, 1, desc.deletes)
}

func TestRewriteTwiceKeepsOnlySecondSet(t *testing.T) {
	desc := &fakeDescription{}

	require.NoError(t, Rewrite(desc, newSet("a", "b")))
	require.NoError(t, Rewrite(desc, newSet("c")))

	assert.Equal(t, []string{"c"}, desc.aliases())
}

func TestRewriteEmptySetClearsDescription(t *testing.T) {
	desc := &fakeDescription{sections: []models.Record{{Alias: "stale"}}}

	require.NoError(t, Rewrite(desc, models.NewRepoSet()))
	assert.Empty(t, desc.sections)
}

func TestRewritePropagatesEngineRejection(t *testing.T) {
	desc := &fakeDescription{reject: "b"}

	err := Rewrite(desc, newSet("a", "b"))
	require.Error(t, err)
	assert.True(t, models.IsErrorType(err, models.ErrRewrite))
	assert.Contains(t, err.Error(), "repository b has no source")
}

func TestRewriteValidatesBeforeDeleting(t *testing.T) {
	desc := &validatingDescription{fakeDescription{sections: []models.Record{{Alias: "stale"}}}}
	set := newSet("a")
	set.Add("broken", models.RepoAttributes{"type": "apt-deb"})

	err := Rewrite(desc, set)
	require.Error(t, err)
	assert.Equal(t, 0, desc.deletes)
	assert.Equal(t, []string{"stale"}, desc.aliases())
}
