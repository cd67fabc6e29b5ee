package plugins

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"media-vault/internal/metrics"
	"media-vault/internal/validation"
)

// Patch is the validated subset of plugin output that may be applied to a
// scene or image. Nil fields were absent or rejected.
type Patch struct {
	Name        *string
	Description *string
	Rating      *int
	Favorite    *bool
	Bookmark    *int64
	ClearMark   bool
	ReleaseDate *int64
	Actors      []string
	Labels      []string
	Studio      *string
	Movies      []string
	Custom      map[string]any
	Thumbnail   *string
}

type fieldDecoder func(p *Patch, field string, v any) error

var sceneFields = map[string]fieldDecoder{
	"name":        decodeName,
	"description": decodeDescription,
	"rating":      decodeRating,
	"favorite":    decodeFavorite,
	"bookmark":    decodeBookmark,
	"releaseDate": decodeReleaseDate,
	"actors":      decodeActors,
	"labels":      decodeLabels,
	"studio":      decodeStudio,
	"movies":      decodeMovies,
	"custom":      decodeCustom,
	"thumbnail":   decodeThumbnail,
}

var imageFields = map[string]fieldDecoder{
	"name":     decodeName,
	"rating":   decodeRating,
	"favorite": decodeFavorite,
	"bookmark": decodeBookmark,
	"actors":   decodeActors,
	"labels":   decodeLabels,
	"studio":   decodeStudio,
	"custom":   decodeCustom,
}

// DecodeScene validates plugin output for a scene. Invalid fields are
// dropped and returned as errors; unknown keys are ignored.
func DecodeScene(out Output) (Patch, validation.Errors) {
	return decode(out, sceneFields)
}

// DecodeImage validates plugin output for an image.
func DecodeImage(out Output) (Patch, validation.Errors) {
	return decode(out, imageFields)
}

func decode(out Output, fields map[string]fieldDecoder) (Patch, validation.Errors) {
	var (
		p    Patch
		errs validation.Errors
	)
	for key, v := range out {
		dec, ok := fields[key]
		if !ok {
			continue
		}
		if err := dec(&p, key, v); err != nil {
			metrics.PluginFieldsRejected.WithLabelValues(key).Inc()
			errs = append(errs, asFieldErrors(key, v, err)...)
		}
	}
	return p, errs
}

func asFieldErrors(field string, v any, err error) validation.Errors {
	if ve, ok := err.(validation.Errors); ok {
		return ve
	}
	return validation.Errors{{Field: field, Tag: err.Error(), Value: v}}
}

func decodeName(p *Patch, field string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("string")
	}
	if err := validation.Var(field, s, "required,max=512"); err != nil {
		return err
	}
	p.Name = &s
	return nil
}

func decodeDescription(p *Patch, field string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("string")
	}
	if err := validation.Var(field, s, "max=65536"); err != nil {
		return err
	}
	p.Description = &s
	return nil
}

func decodeRating(p *Patch, field string, v any) error {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return fmt.Errorf("integer")
	}
	n := int(f)
	if err := validation.Var(field, n, "min=0,max=10"); err != nil {
		return err
	}
	p.Rating = &n
	return nil
}

func decodeFavorite(p *Patch, _ string, v any) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("boolean")
	}
	p.Favorite = &b
	return nil
}

// decodeBookmark accepts a boolean (true marks now, false clears) or a
// unix millisecond timestamp.
func decodeBookmark(p *Patch, field string, v any) error {
	switch t := v.(type) {
	case bool:
		if !t {
			p.ClearMark = true
			return nil
		}
		now := time.Now().UnixMilli()
		p.Bookmark = &now
		return nil
	case float64:
		ms := int64(t)
		if err := validation.Var(field, ms, "min=0"); err != nil {
			return err
		}
		p.Bookmark = &ms
		return nil
	}
	return fmt.Errorf("boolean|timestamp")
}

// decodeReleaseDate accepts RFC 3339, YYYY-MM-DD or unix milliseconds.
func decodeReleaseDate(p *Patch, _ string, v any) error {
	var ms int64
	switch t := v.(type) {
	case float64:
		ms = int64(t)
	case string:
		parsed, err := parseDate(t)
		if err != nil {
			return err
		}
		ms = parsed
	default:
		return fmt.Errorf("date")
	}
	p.ReleaseDate = &ms
	return nil
}

func parseDate(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	return 0, fmt.Errorf("date")
}

func decodeStringList(field string, v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("array")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("string array")
		}
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	if err := validation.Var(field, out, "max=1000,dive,max=512"); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeActors(p *Patch, field string, v any) (err error) {
	p.Actors, err = decodeStringList(field, v)
	return err
}

func decodeLabels(p *Patch, field string, v any) (err error) {
	p.Labels, err = decodeStringList(field, v)
	return err
}

func decodeMovies(p *Patch, field string, v any) (err error) {
	p.Movies, err = decodeStringList(field, v)
	return err
}

func decodeStudio(p *Patch, field string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("string")
	}
	if err := validation.Var(field, s, "required,max=512"); err != nil {
		return err
	}
	p.Studio = &s
	return nil
}

func decodeCustom(p *Patch, _ string, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("object")
	}
	p.Custom = m
	return nil
}

func decodeThumbnail(p *Patch, field string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("image id")
	}
	if err := validation.Var(field, s, "required,startswith=im_"); err != nil {
		return err
	}
	p.Thumbnail = &s
	return nil
}
