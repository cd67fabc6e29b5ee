package queue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"media-vault/internal/apperrors"
	"media-vault/internal/database"
	"media-vault/internal/logging"
	"media-vault/internal/media"
	"media-vault/internal/plugins"

	"github.com/goccy/go-json"
)

// maxDownloadSize caps images fetched on behalf of plugins.
const maxDownloadSize = 64 << 20

type createImageParams struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Name string `json:"name"`
}

type createdImage struct {
	ID   string `json:"_id"`
	Path string `json:"path"`
}

// helpers returns the host functions offered to plugins. Images they create
// belong to ownerID, the record being ingested. A scene owns them directly;
// for an image their ids are appended to linked and referenced when the
// image is persisted.
func (p *Pipeline) helpers(ownerID string, linked *[]string) plugins.Helpers {
	created := func(img *createdImage, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		if linked != nil {
			*linked = append(*linked, img.ID)
		}
		return img, nil
	}
	return plugins.Helpers{
		plugins.MethodCreateImage: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var params createImageParams
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
			}
			if params.URL == "" {
				return nil, fmt.Errorf("%w: url is required", apperrors.ErrValidation)
			}
			dst, err := p.download(ctx, params.URL)
			if err != nil {
				return nil, err
			}
			return created(p.createImage(ctx, ownerID, params.Name, dst))
		},
		plugins.MethodCreateLocalImage: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var params createImageParams
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
			}
			if params.Path == "" {
				return nil, fmt.Errorf("%w: path is required", apperrors.ErrValidation)
			}
			abs, err := filepath.Abs(params.Path)
			if err != nil {
				return nil, err
			}
			if _, err := p.stat(ctx, abs); err != nil {
				return nil, err
			}
			return created(p.createImage(ctx, ownerID, params.Name, abs))
		},
	}
}

func (p *Pipeline) createImage(ctx context.Context, ownerID, name, file string) (*createdImage, error) {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	img := &database.Image{Name: name, Path: file}
	if database.KindOf(ownerID) == database.KindScene {
		img.Scene = ownerID
	}
	if dims, err := media.GetImageDimensions(file); err == nil {
		img.Meta = database.ImageMeta{Width: dims.Width, Height: dims.Height, Size: dims.Size}
	} else {
		logging.Debug("Could not read dimensions of %s: %v", file, err)
	}
	if err := p.catalog.UpsertImage(ctx, img); err != nil {
		return nil, err
	}
	logging.Debug("Plugin created image %s at %s", img.ID, file)
	return &createdImage{ID: img.ID, Path: img.Path}, nil
}

// download fetches url into the image directory and returns the local path.
func (p *Pipeline) download(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	if err := os.MkdirAll(p.cfg.ImageDir, 0o755); err != nil {
		return "", err
	}
	ext := path.Ext(req.URL.Path)
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	dst := filepath.Join(p.cfg.ImageDir, database.NewID(database.KindImage)+ext)

	tmp, err := os.CreateTemp(p.cfg.ImageDir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadSize)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return dst, nil
}
