package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/store"
	"github.com/lofari/DynamicForms-sub000/internal/store/storetest"
)

type fakeSource struct {
	summaries []form.Summary
	forms     map[string]*form.Definition
	err       error
}

func (f *fakeSource) ListFormSummaries(context.Context) ([]form.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries, nil
}

func (f *fakeSource) GetForm(_ context.Context, id string) (*form.Definition, error) {
	if f.err != nil {
		return nil, f.err
	}
	def, ok := f.forms[id]
	if !ok {
		return nil, apperr.NotFound("form not found")
	}
	return def, nil
}

func definition(title string) *form.Definition {
	return &form.Definition{
		ID:    "survey",
		Title: title,
		Pages: []form.Page{{Title: "One", Elements: form.Elements{
			&form.TextField{Attrs: form.Attrs{ID: "name", Label: "Name", Required: true}},
		}}},
	}
}

func TestCatalog_KeepsPriorDefinitionOnFailedRefresh(t *testing.T) {
	src := &fakeSource{forms: map[string]*form.Definition{"survey": definition("v1")}}
	c := New(src, storetest.Open(t, store.ClientSchema), zaptest.NewLogger(t))
	ctx := context.Background()

	def, err := c.Form(ctx, "survey")
	require.NoError(t, err)
	assert.Equal(t, "v1", def.Title)

	src.err = apperr.Network(errors.New("offline"))
	def, err = c.Form(ctx, "survey")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
	require.NotNil(t, def)
	assert.Equal(t, "v1", def.Title)
	require.Len(t, def.Pages[0].Elements, 1)

	src.err = nil
	src.forms["survey"] = definition("v2")
	def, err = c.Form(ctx, "survey")
	require.NoError(t, err)
	assert.Equal(t, "v2", def.Title)

	cached, ok := c.Cached(ctx, "survey")
	require.True(t, ok)
	assert.Equal(t, "v2", cached.Title)
}

func TestCatalog_NothingCached(t *testing.T) {
	src := &fakeSource{err: apperr.Timeout(context.DeadlineExceeded)}
	c := New(src, storetest.Open(t, store.ClientSchema), nil)

	def, err := c.Form(context.Background(), "survey")
	assert.Nil(t, def)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))

	sums, err := c.Summaries(context.Background())
	assert.Nil(t, sums)
	assert.Error(t, err)
}

func TestCatalog_Summaries(t *testing.T) {
	src := &fakeSource{summaries: []form.Summary{{FormID: "survey", Title: "Survey", PageCount: 1, FieldCount: 1}}}
	c := New(src, storetest.Open(t, store.ClientSchema), nil)
	ctx := context.Background()

	sums, err := c.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)

	src.err = apperr.Server(502, "bad gateway")
	sums, err = c.Summaries(ctx)
	require.Error(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "survey", sums[0].FormID)
}

func TestCatalog_CorruptEntryIsAbsent(t *testing.T) {
	db := storetest.Open(t, store.ClientSchema)
	_, err := store.Exec(context.Background(), db.DB,
		"INSERT INTO _form_cache (cache_key, payload, fetched_at) VALUES (?1, ?2, 0)", formKey("survey"), "{oops")
	require.NoError(t, err)

	c := New(&fakeSource{err: errors.New("down")}, db, zaptest.NewLogger(t))
	_, ok := c.Cached(context.Background(), "survey")
	assert.False(t, ok)
}
