package queue

import (
	"context"
	"errors"
	"fmt"

	"media-vault/internal/apperrors"
	"media-vault/internal/database"
	"media-vault/internal/logging"
	"media-vault/internal/mediatypes"
	"media-vault/internal/plugins"
	"media-vault/internal/validation"
)

// resolveNames maps entity names to catalog ids. Unknown names are created
// when create is set and dropped otherwise.
func (p *Pipeline) resolveNames(ctx context.Context, k database.Kind, names []string, create bool) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, err := p.resolveName(ctx, k, name, create)
		if err != nil {
			return nil, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *Pipeline) resolveName(ctx context.Context, k database.Kind, name string, create bool) (string, error) {
	e, ok, err := p.catalog.FindEntityByName(ctx, k, name)
	if err != nil {
		return "", err
	}
	if ok {
		return e.ID, nil
	}
	if !create {
		logging.Debug("Ignoring unknown %s %q from plugin", k, name)
		return "", nil
	}
	e, err = p.catalog.CreateEntity(ctx, k, name)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// mergeRefs resolves the patch's entity names and unions them into r.
// It returns the resolved studio id, or "" when the patch names none.
func (p *Pipeline) mergeRefs(ctx context.Context, patch plugins.Patch, r *refs) (string, error) {
	actors, err := p.resolveNames(ctx, database.KindActor, patch.Actors, p.cfg.CreateMissingActors)
	if err != nil {
		return "", err
	}
	labels, err := p.resolveNames(ctx, database.KindLabel, patch.Labels, p.cfg.CreateMissingLabels)
	if err != nil {
		return "", err
	}
	movies, err := p.resolveNames(ctx, database.KindMovie, patch.Movies, false)
	if err != nil {
		return "", err
	}
	r.actors = dedupe(append(r.actors, actors...))
	r.labels = dedupe(append(r.labels, labels...))
	r.movies = dedupe(append(r.movies, movies...))

	if patch.Studio == nil {
		return "", nil
	}
	return p.resolveName(ctx, database.KindStudio, *patch.Studio, p.cfg.CreateMissingStudios)
}

func (p *Pipeline) applyScenePatch(ctx context.Context, s *database.Scene, patch plugins.Patch, r *refs) error {
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	if patch.Rating != nil {
		s.Rating = *patch.Rating
	}
	if patch.Favorite != nil {
		s.Favorite = *patch.Favorite
	}
	switch {
	case patch.ClearMark:
		s.Bookmark = nil
	case patch.Bookmark != nil:
		s.Bookmark = patch.Bookmark
	}
	if patch.ReleaseDate != nil {
		s.ReleaseDate = patch.ReleaseDate
	}
	s.CustomFields = mergeCustom(s.CustomFields, patch.Custom)

	studio, err := p.mergeRefs(ctx, patch, r)
	if err != nil {
		return err
	}
	if studio != "" {
		s.Studio = studio
	}

	if patch.Thumbnail != nil {
		img, err := p.catalog.GetImage(ctx, *patch.Thumbnail)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			logging.Warn("Plugin thumbnail %s does not exist, ignoring", *patch.Thumbnail)
		case err != nil:
			return err
		default:
			s.Thumbnail = img.ID
		}
	}
	return nil
}

func (p *Pipeline) applyImagePatch(ctx context.Context, img *database.Image, patch plugins.Patch, r *refs) error {
	if patch.Name != nil {
		img.Name = *patch.Name
	}
	if patch.Rating != nil {
		img.Rating = *patch.Rating
	}
	if patch.Favorite != nil {
		img.Favorite = *patch.Favorite
	}
	switch {
	case patch.ClearMark:
		img.Bookmark = nil
	case patch.Bookmark != nil:
		img.Bookmark = patch.Bookmark
	}
	img.CustomFields = mergeCustom(img.CustomFields, patch.Custom)

	studio, err := p.mergeRefs(ctx, patch, r)
	if err != nil {
		return err
	}
	if studio != "" {
		img.Studio = studio
	}
	return nil
}

func applySceneOverrides(s *database.Scene, o Overrides) {
	if o.Name != nil {
		s.Name = *o.Name
	}
	if o.Description != nil {
		s.Description = *o.Description
	}
	if o.Rating != nil {
		s.Rating = *o.Rating
	}
	if o.Favorite != nil {
		s.Favorite = *o.Favorite
	}
	if o.Bookmark != nil {
		s.Bookmark = o.Bookmark
	}
	if o.ReleaseDate != nil {
		s.ReleaseDate = o.ReleaseDate
	}
	s.CustomFields = mergeCustom(s.CustomFields, o.CustomFields)
}

func applyImageOverrides(img *database.Image, o Overrides) {
	if o.Name != nil {
		img.Name = *o.Name
	}
	if o.Rating != nil {
		img.Rating = *o.Rating
	}
	if o.Favorite != nil {
		img.Favorite = *o.Favorite
	}
	if o.Bookmark != nil {
		img.Bookmark = o.Bookmark
	}
	img.CustomFields = mergeCustom(img.CustomFields, o.CustomFields)
}

func mergeCustom(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Complete writes a manually produced result for item instead of running
// the pipeline. Thumbs and images become image records attached to the
// scene; the first thumb is used as the scene thumbnail.
func (p *Pipeline) Complete(ctx context.Context, item *Item, res ManualResult) (string, error) {
	if err := validateManual(res); err != nil {
		return "", err
	}
	if err := p.validateIDs(ctx, item); err != nil {
		return "", err
	}

	r := refs{actors: item.Actors, labels: item.Labels}

	if item.Kind != mediatypes.KindVideo {
		img, err := p.imageFor(ctx, item)
		if err != nil {
			return "", err
		}
		if item.Studio != "" {
			img.Studio = item.Studio
		}
		patch, fieldErrs := plugins.DecodeImage(res.Scene)
		if len(fieldErrs) > 0 {
			return "", fmt.Errorf("%w: %v", apperrors.ErrValidation, fieldErrs)
		}
		if err := p.applyImagePatch(ctx, img, patch, &r); err != nil {
			return "", err
		}
		applyImageOverrides(img, item.Overrides)
		if len(res.Thumbs) > 0 {
			img.ThumbnailPath = res.Thumbs[0].Path
		}
		if err := p.persistImage(ctx, img, r); err != nil {
			return "", err
		}
		p.indexImage(ctx, img, r)
		return img.ID, nil
	}

	s, err := p.sceneFor(ctx, item)
	if err != nil {
		return "", err
	}
	if item.Studio != "" {
		s.Studio = item.Studio
	}
	patch, fieldErrs := plugins.DecodeScene(res.Scene)
	if len(fieldErrs) > 0 {
		return "", fmt.Errorf("%w: %v", apperrors.ErrValidation, fieldErrs)
	}
	if err := p.applyScenePatch(ctx, s, patch, &r); err != nil {
		return "", err
	}
	applySceneOverrides(s, item.Overrides)

	for i, m := range append(append([]ManualImage{}, res.Thumbs...), res.Images...) {
		img := &database.Image{Name: m.Name, Path: m.Path, Scene: s.ID}
		if img.Name == "" {
			img.Name = s.Name
		}
		if err := p.persistImage(ctx, img, refs{actors: r.actors, labels: r.labels}); err != nil {
			return "", err
		}
		if i == 0 && len(res.Thumbs) > 0 {
			s.Thumbnail = img.ID
		}
	}

	if err := p.persistScene(ctx, s, r); err != nil {
		return "", err
	}
	p.indexScene(ctx, s, r)
	return s.ID, nil
}

func validateManual(res ManualResult) error {
	if err := validation.Struct(res); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return nil
}
