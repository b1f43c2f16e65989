// Package heatmap produces overlay images for uploaded slides. The only
// renderer today substitutes one of a few pre-rendered assets.
package heatmap

import (
	"context"
	"embed"
	"fmt"
	"hash/fnv"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
)

//go:embed assets/*.png
var embedded embed.FS

// PathPrefix is the URL prefix heatmap files are served under
const PathPrefix = "/api/samples/heatmap/"

// Selection modes
const (
	SelectHash   = "hash"
	SelectRandom = "random"
)

type asset struct {
	file      string
	kind      string
	colormap  string
	analytics entities.HeatmapAnalytics
}

var catalogue = []asset{
	{
		file:     "tumor_probability.png",
		kind:     "tumor_probability",
		colormap: "hot",
		analytics: entities.HeatmapAnalytics{
			MinValue: 0.0, MaxValue: 0.9073608271482184, MeanValue: 0.28915497976794247, StdValue: 0.234978657554125,
			Shape: [2]int{16, 16}, Hotspots: 17, TotalPixels: 256,
		},
	},
	{
		file:     "confidence.png",
		kind:     "confidence",
		colormap: "viridis",
		analytics: entities.HeatmapAnalytics{
			MinValue: 0.3768195980284063, MaxValue: 0.9339579326308897, MeanValue: 0.6236872365395125, StdValue: 0.1339540600255726,
			Shape: [2]int{16, 16}, Hotspots: 85, TotalPixels: 256,
		},
	},
	{
		file:     "attention.png",
		kind:     "attention",
		colormap: "jet",
		analytics: entities.HeatmapAnalytics{
			MinValue: 0.0521, MaxValue: 0.9812, MeanValue: 0.4127, StdValue: 0.2264,
			Shape: [2]int{16, 16}, Hotspots: 42, TotalPixels: 256,
		},
	},
}

// AssetRenderer copies a canned asset next to the uploaded images
type AssetRenderer struct {
	assets    fs.FS
	outputDir string
	selection string
	now       func() time.Time
	intn      func(n int) int
}

// NewAssetRenderer creates a renderer reading assets from assetDir, or from
// the built-in set when assetDir is empty or missing.
func NewAssetRenderer(assetDir, outputDir, selection string) *AssetRenderer {
	var assets fs.FS
	if info, err := os.Stat(assetDir); assetDir != "" && err == nil && info.IsDir() {
		assets = os.DirFS(assetDir)
	} else {
		assets, _ = fs.Sub(embedded, "assets")
	}
	if selection != SelectRandom {
		selection = SelectHash
	}
	return &AssetRenderer{
		assets:    assets,
		outputDir: outputDir,
		selection: selection,
		now:       time.Now,
		intn:      rand.IntN,
	}
}

var _ providers.HeatmapRenderer = (*AssetRenderer)(nil)

// Render writes heatmap_<stem>_<millis>.png and describes it
func (r *AssetRenderer) Render(ctx context.Context, image *entities.SampleImage) (*entities.Heatmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if image == nil || image.Filename == "" {
		return nil, fmt.Errorf("image filename is required")
	}

	chosen := catalogue[r.pick(image.Filename)]
	data, err := fs.ReadFile(r.assets, chosen.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read heatmap asset %s: %w", chosen.file, err)
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create heatmap directory: %w", err)
	}

	at := r.now()
	stem := strings.TrimSuffix(image.Filename, filepath.Ext(image.Filename))
	name := fmt.Sprintf("heatmap_%s_%d.png", stem, at.UnixMilli())

	f, err := os.OpenFile(filepath.Join(r.outputDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create heatmap file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write heatmap file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close heatmap file: %w", err)
	}

	return &entities.Heatmap{
		Filename:    name,
		Path:        PathPrefix + name,
		Colormap:    chosen.colormap,
		Type:        chosen.kind,
		Analytics:   chosen.analytics,
		GeneratedAt: at.UTC(),
	}, nil
}

func (r *AssetRenderer) pick(filename string) int {
	if r.selection == SelectRandom {
		return r.intn(len(catalogue))
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(filename))
	return int(h.Sum32() % uint32(len(catalogue)))
}
