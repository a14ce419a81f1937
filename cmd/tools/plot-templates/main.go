// plot-templates renders a user's registered gesture templates to a PNG and
// prints the pairwise DTW distances between them. The spread of those
// distances is a useful first guess when calibrating the match threshold.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gesture.auth/internal/config"
	"github.com/banshee-data/gesture.auth/internal/db"
	"github.com/banshee-data/gesture.auth/internal/gesture"
	"github.com/banshee-data/gesture.auth/internal/security"
)

var (
	dbPath     = flag.String("db", "gesture.db", "Path to the SQLite template database")
	configPath = flag.String("config", "", "Path to the daemon JSON or YAML config (for template shape and band)")
	user       = flag.String("user", "", "Username to plot")
	out        = flag.String("out", "", "Output PNG path (default <user>-templates.png)")
)

func main() {
	flag.Parse()
	if *user == "" {
		log.Fatal("-user is required")
	}
	if *out == "" {
		*out = security.SanitizeFilename(*user) + "-templates.png"
	}
	if err := security.ValidateOutputPath(*out); err != nil {
		log.Fatalf("Invalid output path: %v", err)
	}

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	store := db.NewTemplateStore(database, cfg.GetRegistrationSamples(), cfg.GetTrajectoryLength())
	set, err := store.Load(context.Background(), *user)
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	if err := renderTemplates(*user, set, *out); err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	log.Printf("wrote %s", *out)
	printDistances(os.Stdout, set, cfg.GetBand(), cfg.GetThreshold())
}

// palette cycles for sets larger than its length.
var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
}

func renderTemplates(username string, set gesture.TemplateSet, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - registered gestures", username)
	p.X.Label.Text = "X (normalized)"
	p.Y.Label.Text = "Y (normalized)"

	for i, tpl := range set {
		pts := make(plotter.XYs, tpl.Len())
		for j := range pts {
			pt := tpl.At(j)
			pts[j] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("template %d: %w", i, err)
		}
		line.Width = vg.Points(1)
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("template %d", i+1), line)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

func printDistances(w io.Writer, set gesture.TemplateSet, band int, threshold float64) {
	fmt.Fprintf(w, "pairwise DTW distances (threshold %.3f)\n", threshold)
	for i := range set {
		for j := i + 1; j < len(set); j++ {
			fmt.Fprintf(w, "  %d-%d: %.4f\n", i+1, j+1, gesture.DistanceBand(set[i], set[j], band))
		}
	}
}
