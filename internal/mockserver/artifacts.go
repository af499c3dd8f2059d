package mockserver

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"

	"mapgen/internal/model"
)

const heightmapSize = 64

// renderHeightmap draws a small deterministic grayscale terrain preview whose
// shape depends on the submitted settings.
func renderHeightmap(settings model.Document) ([]byte, error) {
	seed, err := settingsSeed(settings)
	if err != nil {
		return nil, err
	}
	fx := 1 + float64(seed%7)
	fy := 1 + float64((seed/7)%5)
	phase := float64(seed%360) * math.Pi / 180

	img := image.NewGray(image.Rect(0, 0, heightmapSize, heightmapSize))
	for y := 0; y < heightmapSize; y++ {
		for x := 0; x < heightmapSize; x++ {
			u := float64(x) / heightmapSize * 2 * math.Pi
			v := float64(y) / heightmapSize * 2 * math.Pi
			h := (math.Sin(u*fx+phase) + math.Cos(v*fy-phase) + 2) / 4
			img.SetGray(x, y, color.Gray{Y: uint8(h * 255)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode heightmap: %w", err)
	}
	return buf.Bytes(), nil
}

func settingsSeed(settings model.Document) (uint32, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return 0, fmt.Errorf("encode settings: %w", err)
	}
	h := fnv.New32a()
	_, _ = h.Write(raw)
	return h.Sum32(), nil
}

// buildArchive packs the generated output the way the real service ships it:
// the settings that produced the map plus its heightmap.
func buildArchive(t *task) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	settings, err := json.MarshalIndent(t.settings, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	heightmap, err := renderHeightmap(t.settings)
	if err != nil {
		return nil, err
	}
	files := []struct {
		name string
		data []byte
	}{
		{name: "settings.json", data: settings},
		{name: "heightmap.png", data: heightmap},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", f.name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func archiveName(t *task) string {
	short := t.id
	if len(short) > 8 {
		short = short[:8]
	}
	return "map-" + short + ".zip"
}
