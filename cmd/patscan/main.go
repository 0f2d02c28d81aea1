package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/esimov/patscan"
	"github.com/esimov/patscan/utils"
	pigo "github.com/esimov/pigo/core"
	_ "golang.org/x/image/bmp"
	"golang.org/x/term"
)

const HelpBanner = `
┌─┐┌─┐┌┬┐┌─┐┌─┐┌─┐┌┐┌
├─┘├─┤ │ └─┐│  ├─┤│││
┴  ┴ ┴ ┴ └─┘└─┘┴ ┴┘└┘

Cascade-based multiscale sliding-window pattern scanner.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

var (
	// Flags
	source      = flag.String("in", pipeName, "Source image (file, URL or '-' for stdin)")
	destination = flag.String("out", pipeName, "Destination of the JSON detection report ('-' for stdout)")
	cascade     = flag.String("cc", "", "Cascade classifier file")
	winWidth    = flag.Int("width", 20, "Classifier window width")
	winHeight   = flag.Int("height", 20, "Classifier window height")
	dx          = flag.Float64("dx", 0.1, "Window step as a fraction of the window width")
	dy          = flag.Float64("dy", 0.1, "Window step as a fraction of the window height")
	ds          = flag.Float64("ds", 1.1, "Scale growth factor between scan levels")
	minSize     = flag.Int("min", 0, "Minimum pattern size")
	maxSize     = flag.Int("max", 0, "Maximum pattern size")
	useMean     = flag.Bool("mean", false, "Prune using the mean test")
	useStdev    = flag.Bool("stdev", false, "Prune using the standard deviation test")
	minMean     = flag.Float64("minmean", 0, "Minimum per-pixel mean of an acceptable window")
	maxMean     = flag.Float64("maxmean", 255, "Maximum per-pixel mean of an acceptable window")
	minStdev    = flag.Float64("minstdev", 0, "Minimum per-pixel standard deviation of an acceptable window")
	maxStdev    = flag.Float64("maxstdev", 255, "Maximum per-pixel standard deviation of an acceptable window")
	selectMode  = flag.String("select", "merge", "Selection mode: all, merge")
	mergeMode   = flag.String("mergemode", "best", "Cluster representative: best, average")
	overlapMode = flag.String("overlap", "iou", "Overlap ratio: iou, min")
	minOverlap  = flag.Float64("minoverlap", 0.5, "Minimum overlap ratio joining two detections")
	explorer    = flag.String("explorer", "multiscale", "Geometric strategy: multiscale, pyramid")
	stepping    = flag.String("stepping", "dense", "Stepping refinement: dense, uniform")
	workers     = flag.Int("conc", runtime.NumCPU(), "Number of scale levels to scan concurrently")
	verbose     = flag.Bool("verbose", false, "Emit the scan trace")
)

func main() {
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		flag.PrintDefaults()
	}
	flag.Parse()

	if len(*cascade) == 0 {
		flag.Usage()
		log.Fatal(utils.DecorateText("\nPlease specify a cascade classifier file with the -cc flag!", utils.ErrorMessage))
	}

	cfg, err := scanConfig()
	if err != nil {
		log.Fatal(utils.DecorateText(err.Error(), utils.ErrorMessage))
	}

	data, err := os.ReadFile(*cascade)
	if err != nil {
		log.Fatalf(
			utils.DecorateText("Failed to load the cascade classifier: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}
	cc, err := patscan.UnpackCascade(data)
	if err != nil {
		log.Fatalf(
			utils.DecorateText("Failed to unpack the cascade classifier: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}

	src, err := sourceImage(*source)
	if err != nil {
		log.Fatalf(
			utils.DecorateText("Failed to load the source image: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}

	scanner := &patscan.Scanner{
		Config:    cfg,
		Evaluator: patscan.NewCascadeClassifier(cc),
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	spinnerText := fmt.Sprintf("%s %s",
		utils.DecorateText("⚡ PATSCAN", utils.StatusMessage),
		utils.DecorateText("is scanning the image...", utils.DefaultMessage))
	spinner := utils.NewSpinner(spinnerText, time.Millisecond*200, true)

	now := time.Now()
	spinner.Start()
	res, err := scanner.Detect(src)
	spinner.Stop()
	if err != nil {
		log.Fatalf(
			utils.DecorateText("Error scanning the image: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}

	if err := writeReport(*destination, res); err != nil {
		log.Fatal(utils.DecorateText(err.Error(), utils.ErrorMessage))
	}

	fmt.Fprintf(os.Stderr, "\nDetections: %s  (scanned: %d, pruned: %d, accepted: %d)\n",
		utils.DecorateText(fmt.Sprintf("%d", len(res.Detections)), utils.SuccessMessage),
		res.Stats.Scanned, res.Stats.Pruned, res.Stats.Accepted,
	)
	fmt.Fprintf(os.Stderr, "Execution time: %s\n",
		utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
}

// scanConfig maps the command line flags onto the scan configuration.
func scanConfig() (patscan.Config, error) {
	cfg := patscan.DefaultConfig()
	cfg.DX, cfg.DY, cfg.DS = *dx, *dy, *ds
	cfg.WindowW, cfg.WindowH = *winWidth, *winHeight
	cfg.MinPattW, cfg.MinPattH = *minSize, *minSize
	cfg.MaxPattW, cfg.MaxPattH = *maxSize, *maxSize
	cfg.PruneUseMean, cfg.PruneUseStdev = *useMean, *useStdev
	cfg.MinMean, cfg.MaxMean = *minMean, *maxMean
	cfg.MinStdev, cfg.MaxStdev = *minStdev, *maxStdev
	cfg.MinOverlap = *minOverlap
	cfg.Workers = *workers
	cfg.Verbose = *verbose

	switch *selectMode {
	case "all":
		cfg.Select = patscan.SelectAll
	case "merge":
		cfg.Select = patscan.SelectMerge
	default:
		return cfg, fmt.Errorf("unknown selection mode %q", *selectMode)
	}

	switch *mergeMode {
	case "best":
		cfg.Merge = patscan.MergeBest
	case "average":
		cfg.Merge = patscan.MergeAverage
	default:
		return cfg, fmt.Errorf("unknown merge mode %q", *mergeMode)
	}

	switch *overlapMode {
	case "iou":
		cfg.Overlap = patscan.OverlapIoU
	case "min":
		cfg.Overlap = patscan.OverlapMin
	default:
		return cfg, fmt.Errorf("unknown overlap mode %q", *overlapMode)
	}

	switch *explorer {
	case "multiscale":
		cfg.Explorer = patscan.Multiscale
	case "pyramid":
		cfg.Explorer = patscan.Pyramid
	default:
		return cfg, fmt.Errorf("unknown explorer type %q", *explorer)
	}

	switch *stepping {
	case "dense":
		cfg.Stepping = patscan.SteppingDense
	case "uniform":
		cfg.Stepping = patscan.SteppingUniform
	default:
		return cfg, fmt.Errorf("unknown stepping mode %q", *stepping)
	}

	return cfg, nil
}

// sourceImage loads the input image from a URL, the stdin pipe or a local file.
func sourceImage(in string) (image.Image, error) {
	if utils.IsValidUrl(in) {
		tmp, err := utils.DownloadImage(in)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()

		return pigo.GetImage(tmp.Name())
	}

	if in == pipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, fmt.Errorf("`-` should be used with a pipe for stdin")
		}
		img, _, err := image.Decode(os.Stdin)
		return img, err
	}

	return pigo.GetImage(in)
}

// writeReport encodes the scan result as JSON into the destination.
func writeReport(out string, res *patscan.Result) error {
	w := os.Stdout
	if out != pipeName {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("unable to create the destination file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
